// Command hyperate-watch streams heartbeats from the HypeRate relay.
//
// Usage:
//
//	hyperate-watch [flags] <device-id-or-share-url>...
//
// Each argument is a device ID ("abc123") or a share URL
// ("https://app.hyperate.io/abc123"). The command subscribes to the
// heartbeat channel of every device and prints incoming samples until
// interrupted.
//
// Flags:
//
//	-token        API token (prompted for if omitted)
//	-config       YAML configuration file
//	-endpoint     relay WebSocket URL (overrides config)
//	-clips        also subscribe to clip notifications
//	-protocol-log write protocol events to a JSONL file
//	-interactive  start an interactive prompt instead of just watching
//
// Interactive mode accepts:
//
//	sub <id>     subscribe to a device's heartbeats
//	clips <id>   subscribe to a device's clip feed
//	unsub <id>   drop a device's heartbeat subscription
//	list         show current subscriptions
//	state        show the connection state
//	exit         quit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/hyperate/hyperate-go/pkg/client"
	"github.com/hyperate/hyperate-go/pkg/device"
	"github.com/hyperate/hyperate-go/pkg/event"
	hlog "github.com/hyperate/hyperate-go/pkg/log"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var (
		token       = flag.String("token", "", "API token (prompted for if omitted)")
		configPath  = flag.String("config", "", "YAML configuration file")
		endpoint    = flag.String("endpoint", "", "relay WebSocket URL (overrides config)")
		clips       = flag.Bool("clips", false, "also subscribe to clip notifications")
		protocolLog = flag.String("protocol-log", "", "write protocol events to a JSONL file")
		interactive = flag.Bool("interactive", false, "start an interactive prompt")
	)
	flag.Parse()

	if flag.NArg() == 0 && !*interactive {
		fmt.Fprintln(os.Stderr, "usage: hyperate-watch [flags] <device-id-or-share-url>...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, cleanup, err := buildConfig(*configPath, *token, *endpoint, *protocolLog)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	defer cleanup()

	ids, err := resolveDeviceIDs(flag.Args())
	if err != nil {
		log.Fatalf("Device ID error: %v", err)
	}

	c, err := client.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	registerHandlers(c)

	if err := c.Start(context.Background()); err != nil {
		// The client keeps retrying in the background; report and
		// carry on.
		log.Printf("Initial connection failed, retrying: %v", err)
	}

	for _, id := range ids {
		if err := c.SubscribeHeartbeat(id); err != nil {
			log.Fatalf("Failed to subscribe %s: %v", id, err)
		}
		if *clips {
			if err := c.SubscribeClip(id); err != nil {
				log.Fatalf("Failed to subscribe clips of %s: %v", id, err)
			}
		}
	}

	if *interactive {
		runInteractive(c)
	} else {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
	}

	log.Println("Shutting down...")
	c.Stop()
}

// buildConfig assembles the client configuration from file, flags and,
// as a last resort, an interactive token prompt.
func buildConfig(configPath, token, endpoint, protocolLog string) (client.Config, func(), error) {
	cleanup := func() {}

	var cfg client.Config
	if configPath != "" {
		loaded, err := client.LoadConfig(configPath)
		if err != nil {
			return client.Config{}, cleanup, err
		}
		cfg = loaded
	}
	if token != "" {
		cfg.APIToken = token
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}

	if cfg.APIToken == "" {
		prompted, err := promptToken()
		if err != nil {
			return client.Config{}, cleanup, err
		}
		cfg.APIToken = prompted
	}

	if protocolLog != "" {
		fl, err := hlog.NewFileLogger(protocolLog)
		if err != nil {
			return client.Config{}, cleanup, err
		}
		cfg.Logger = fl
		cleanup = func() {
			if err := fl.Close(); err != nil {
				log.Printf("Error closing protocol log: %v", err)
			}
		}
	}

	return cfg, cleanup, nil
}

func promptToken() (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "API token: ",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no API token given")
	}
	return token, nil
}

// resolveDeviceIDs normalizes arguments that may be raw IDs or share
// URLs.
func resolveDeviceIDs(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		id, err := device.ExtractDeviceID(arg)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func registerHandlers(c *client.Client) {
	c.On(event.CategoryHeartbeat, func(evt event.Event) error {
		hb := evt.(event.Heartbeat)
		log.Printf("[%s] %d bpm", hb.DeviceID, hb.BPM)
		return nil
	})
	c.On(event.CategoryClip, func(evt event.Event) error {
		clip := evt.(event.Clip)
		log.Printf("[%s] clip: %s", clip.DeviceID, clip.TwitchSlug)
		return nil
	})
	c.On(event.CategoryConnection, func(evt event.Event) error {
		sc := evt.(event.StateChanged)
		log.Printf("Connection: %s -> %s", sc.Old, sc.New)
		return nil
	})
	c.On(event.CategoryChannelError, func(evt event.Event) error {
		ce := evt.(event.ChannelError)
		log.Printf("Channel %s error: %s", ce.Topic, ce.Reason)
		return nil
	})
	c.On(event.CategoryError, func(evt event.Event) error {
		log.Printf("Error: %v", evt.(event.Error))
		return nil
	})
}

func runInteractive(c *client.Client) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hyperate> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("Failed to create readline: %v", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			// Interrupt or EOF ends the session.
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch cmd := fields[0]; cmd {
		case "exit", "quit":
			return
		case "state":
			fmt.Println(c.State())
		case "list":
			for _, sub := range c.Subscriptions() {
				fmt.Printf("%s %s\n", sub.Kind, sub.ID)
			}
		case "sub", "clips", "unsub":
			if len(fields) != 2 {
				fmt.Printf("usage: %s <device-id>\n", cmd)
				continue
			}
			id, err := device.ExtractDeviceID(fields[1])
			if err != nil {
				fmt.Printf("bad device id: %v\n", err)
				continue
			}
			switch cmd {
			case "sub":
				err = c.SubscribeHeartbeat(id)
			case "clips":
				err = c.SubscribeClip(id)
			case "unsub":
				err = c.UnsubscribeHeartbeat(id)
			}
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
		default:
			fmt.Println("commands: sub, clips, unsub, list, state, exit")
		}
	}
}
