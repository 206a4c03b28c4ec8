package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ehrlich-b/mtmsg"
	"github.com/ehrlich-b/mtmsg/internal/logging"
)

func main() {
	var (
		verbose   = flag.Bool("v", false, "verbose output")
		producers = flag.Int("producers", 4, "number of producer buffers for the fan-in demo")
		perEach   = flag.Int("count", 5, "messages per producer")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	logger.Info("starting echo demo")
	if err := runEcho(); err != nil {
		logger.Error("echo demo failed", "error", err)
		os.Exit(1)
	}

	logger.Info("starting fan-in demo", "producers", *producers, "count", *perEach)
	if err := runFanIn(*producers, *perEach); err != nil {
		logger.Error("fan-in demo failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	fmt.Println("demos complete, press Ctrl+C to exit")
	<-sigCh
}

// runEcho demonstrates one producer and one consumer sharing a single
// standalone buffer.
func runEcho() error {
	b, err := mtmsg.NewBuffer("echo", 4096, 2)
	if err != nil {
		return err
	}
	defer b.Release()

	w := mtmsg.NewWriter(64, 2)
	_ = w.AddString("hello")
	_ = w.AddInt(42)
	if err := w.AddMsg(b); err != nil {
		return err
	}

	values, ok, err := b.NextMsg(time.Second)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("echo: expected a message, got none")
	}
	fmt.Printf("echo received: %v\n", values)
	return nil
}

// runFanIn demonstrates several producer buffers attached to one
// listener, consumed in ready-list order.
func runFanIn(producers, perEach int) error {
	l, err := mtmsg.NewListener("fanin")
	if err != nil {
		return err
	}
	defer l.Release()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		b, err := l.NewBuffer(fmt.Sprintf("producer-%d", p), 4096, 2)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(p int, b *mtmsg.Buffer) {
			defer wg.Done()
			for i := 0; i < perEach; i++ {
				_ = b.AddMsg(p, i)
			}
		}(p, b)
	}

	received := 0
	want := producers * perEach
	for received < want {
		values, ok, err := l.NextMsg(2 * time.Second)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Printf("fan-in received: %v\n", values)
		received++
	}
	wg.Wait()

	if received != want {
		return fmt.Errorf("fan-in: received %d of %d messages", received, want)
	}
	return nil
}
