// Command idigipush is a sample client for the push transport: it looks
// up (or creates) a Monitor for a comma-separated topic list, opens a
// push session against it, and prints each received payload.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli"

	"github.com/digi-push/idigipush/monitor"
	"github.com/digi-push/idigipush/push"
)

func main() {
	app := cli.NewApp()
	app.Name = "idigipush"
	app.Usage = "subscribe to a push Monitor and print received payloads"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "username, u", Usage: "account username"},
		cli.StringFlag{Name: "password, p", Usage: "account password"},
		cli.StringFlag{Name: "host", Value: "developer.idigi.com", Usage: "push endpoint host"},
		cli.StringFlag{Name: "rest-url", Usage: "base URL of the Monitor REST API"},
		cli.StringFlag{Name: "topics, t", Value: "DeviceCore", Usage: "comma-separated topic list"},
		cli.StringFlag{Name: "format", Value: "json", Usage: "json or xml"},
		cli.StringFlag{Name: "ca-certs", Usage: "PEM file of trust anchors for TLS"},
		cli.BoolFlag{Name: "insecure", Usage: "connect without TLS"},
		cli.IntFlag{Name: "workers", Value: 20, Usage: "callback worker pool size"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	topics := strings.Split(c.String("topics"), ",")
	format := monitor.FormatJSON
	if c.String("format") == "xml" {
		format = monitor.FormatXML
	}

	ctx := context.Background()
	rest := &monitor.Client{
		BaseURL:  c.String("rest-url"),
		Username: c.String("username"),
		Password: c.String("password"),
	}

	mon, err := rest.Find(ctx, topics)
	if err != nil {
		return err
	}
	if mon == nil {
		m, err := rest.Create(ctx, monitor.Monitor{
			Topics:        topics,
			BatchSize:     1,
			BatchDuration: 0,
			Format:        format,
			Compression:   monitor.CompressionNone,
		})
		if err != nil {
			return err
		}
		mon = &m
	}

	monitorID, err := parseMonitorID(mon.ID)
	if err != nil {
		return err
	}

	opts := []push.Option{
		push.WithHost(c.String("host")),
		push.WithWorkerPoolSize(c.Int("workers")),
	}
	if c.Bool("insecure") {
		opts = append(opts, push.WithInsecure())
	}
	if ca := c.String("ca-certs"); ca != "" {
		opts = append(opts, push.WithTrustAnchors(ca))
	}

	client := push.NewClient(push.Credentials{
		Username: []byte(c.String("username")),
		Password: []byte(c.String("password")),
	}, opts...)

	callback := xmlCallback
	if format == monitor.FormatJSON {
		callback = jsonCallback
	}

	if _, err := client.CreateSession(ctx, monitorID, callback); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	client.StopAll()
	return nil
}

func parseMonitorID(id string) (uint32, error) {
	var n uint32
	_, err := fmt.Sscanf(id, "%d", &n)
	return n, err
}

// jsonCallback pretty-prints a JSON payload. It returns true (ack) only
// when the payload parses as valid JSON.
func jsonCallback(payload []byte) bool {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		log.Print(err)
		return false
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("%s\n", pretty)
	return true
}

// xmlCallback prints a raw XML payload. It returns true (ack) as long as
// the payload is non-empty; this is a sample callback, not a validator.
func xmlCallback(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	fmt.Printf("%s\n", payload)
	return true
}
