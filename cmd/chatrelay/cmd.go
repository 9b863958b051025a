package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/shazow/rateio"

	"github.com/chatrelay/chatrelay"
	"github.com/chatrelay/chatrelay/chat"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/relay"

	_ "net/http/pprof"
)

// Version of the binary, assigned during build.
var Version string = "dev"

// Options contains the flag options
type Options struct {
	Verbose      []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version      bool   `long:"version" description:"Print version and exit."`
	Config       string `short:"c" long:"config" description:"Optional YAML config file."`
	Bind         string `long:"bind" description:"Host and port for both transports, overrides the config."`
	StreamBind   string `long:"stream-bind" description:"Host and port for TCP clients, overrides --bind."`
	DatagramBind string `long:"datagram-bind" description:"Host and port for UDP joins, overrides --bind."`
	Log          string `long:"log" description:"Write chat log to this file, or - for stdout."`
	Pprof        int    `long:"pprof" description:"Enable pprof http server for profiling."`
	Connect      string `long:"connect" description:"Run as a client of the relay at this address, piping stdin lines."`
	UDP          bool   `long:"udp" description:"Use the datagram transport with --connect."`
}

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func fail(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Print(err)
		}
		return
	}

	if options.Pprof != 0 {
		go func() {
			fmt.Println(http.ListenAndServe(fmt.Sprintf("localhost:%d", options.Pprof), nil))
		}()
	}

	if options.Version {
		fmt.Println(Version)
		return
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logger := golog.New(os.Stderr, logLevel)
	chatrelay.SetLogger(logger)

	if logLevel == log.Debug {
		// Enable logging from submodules
		chat.SetLogger(os.Stderr)
		relay.SetLogger(os.Stderr)
	}

	cfg, err := config.Load(options.Config)
	if err != nil {
		fail(1, "%v\n", err)
	}
	applyOptions(cfg, options)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if options.Connect != "" {
		if err := runClient(ctx, options.Connect, options.UDP, cfg.HandshakeTimeout, os.Stdin, os.Stdout); err != nil {
			fail(4, "%v\n", err)
		}
		return
	}

	var stream *relay.StreamListener
	if cfg.StreamAddr != "" {
		stream, err = relay.ListenStream(cfg.StreamAddr)
		if err != nil {
			fail(4, "Failed to listen on %s: %v\n", cfg.StreamAddr, err)
		}
		if cfg.WriteTimeout > 0 {
			stream.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.InputLimit.Enabled() {
			stream.RateLimit = relay.NewInputLimiter(cfg.InputLimit.Bytes, cfg.InputLimit.Interval)
		}
	}

	var datagram *relay.DatagramListener
	if cfg.DatagramAddr != "" {
		datagram, err = relay.ListenDatagram(cfg.DatagramAddr)
		if err != nil {
			if stream != nil {
				stream.Close()
			}
			fail(4, "Failed to listen on %s: %v\n", cfg.DatagramAddr, err)
		}
		if cfg.DatagramBuffer > 0 {
			datagram.BufferSize = cfg.DatagramBuffer
		}
	}

	observers := chat.Observers{chat.LogObserver{}}
	if options.Log == "-" {
		observers = append(observers, chat.NewWriterObserver(os.Stdout))
	} else if options.Log != "" {
		fp, err := os.OpenFile(options.Log, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			fail(5, "Failed to open log file for writing: %v", err)
		}
		defer fp.Close()
		observers = append(observers, chat.NewWriterObserver(fp))
	}

	host := chatrelay.NewHostBuffered(stream, datagram, observers, cfg.ObserverBuffer)
	host.Greeting = cfg.Greeting
	host.MaxInputLength = cfg.MaxInputLength
	host.OutboxSize = cfg.OutboxBuffer
	if cfg.RateLimit.Enabled() {
		limit := cfg.RateLimit
		host.RateLimit = func() rateio.Limiter {
			return rateio.NewSimpleLimiter(limit.Messages, limit.Interval)
		}
	}

	host.Serve(ctx)
	if ctx.Err() != nil {
		logger.Warning("Interrupt signal detected, shut down.")
	}
}

// applyOptions lets command line flags override the loaded config.
func applyOptions(cfg *config.Config, options Options) {
	if options.Bind != "" {
		cfg.StreamAddr = options.Bind
		cfg.DatagramAddr = options.Bind
	}
	if options.StreamBind != "" {
		cfg.StreamAddr = options.StreamBind
	}
	if options.DatagramBind != "" {
		cfg.DatagramAddr = options.DatagramBind
	}
}
