package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sevlyar/go-daemon"

	"github.com/andrewlester/truetime/internal/sugar"
	"github.com/andrewlester/truetime/pkg/truetime"
)

const defaultPool = "time.google.com,time.cloudflare.com,pool.ntp.org"
const defaultPort = 123

func main() {
	var pool string
	var port int
	var asDaemon bool
	flag.StringVar(&pool, "pool", defaultPool, "Comma-separated list of NTP host names.")
	flag.IntVar(&port, "port", defaultPort, "NTP port to query.")
	flag.BoolVar(&asDaemon, "daemon", false, "Run sampling in the background instead of showing the terminal UI.")
	flag.Parse()

	hosts := strings.Split(pool, ",")
	for i := range hosts {
		hosts[i] = strings.TrimSpace(hosts[i])
	}

	if asDaemon {
		runAsDaemon(hosts, port)
		return
	}

	runForeground(hosts, port)
}

func runForeground(hosts []string, port int) {
	client := truetime.NewClient(truetime.DefaultConfig(), truetime.NewDialReachabilitySource("1.1.1.1:53", 10*time.Second))
	defer client.Close()

	client.Start(hosts, port)

	if _, err := sugar.RunProgramWithErrors(newWatchModel(client)); err != nil {
		log.Fatalf("truetime-watch: %v", err)
	}
}

func runAsDaemon(hosts []string, port int) {
	wd := newWatchDaemon(daemonName)

	proc, err := wd.reborn()
	if err != nil {
		if errors.Is(err, daemon.ErrWouldBlock) {
			if err := wd.stop(); err != nil {
				log.Fatal(err)
			}
			fmt.Println("stopped truetime-watch daemon")
			return
		}
		log.Fatal("unable to daemonize: ", err)
	}
	if proc != nil {
		fmt.Printf("truetime-watch daemon started (pid %d)\n", proc.Pid)
		return
	}
	defer wd.release()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("truetime-watch daemon starting, pool=%v port=%d", hosts, port)

	client := truetime.NewClient(truetime.DefaultConfig(), truetime.NewDialReachabilitySource("1.1.1.1:53", 10*time.Second))
	defer client.Close()
	client.Start(hosts, port)

	for range client.Updates() {
		ref := client.ReferenceTime()
		if ref == nil {
			continue
		}
		now := ref.Now()
		log.Printf("reference updated: host=%s true_time=%s sample_size=%s",
			ref.Host, now.Time().Format("2006-01-02T15:04:05.000Z07:00"), strconv.Itoa(ref.SampleSize))
	}
}
