// Basestation is a minimal base station: it sends drive commands and destinations
// to the rover over UDP and prints the telemetry it answers with.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/urfave/cli"

	"RoverDrive/internal/model"
	"RoverDrive/internal/parser"
	"RoverDrive/internal/util"
)

func main() {
	util.SetupLogger()

	app := cli.NewApp()
	app.Name = "basestation"
	app.Usage = "send commands to the rover and print its telemetry"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rover",
			Value: "127.0.0.1:8840",
			Usage: "rover UDP address",
		},
		cli.StringFlag{
			Name:  "format",
			Value: "json",
			Usage: "telemetry output format (json or csv)",
		},
		cli.DurationFlag{
			Name:  "wait",
			Value: 2 * time.Second,
			Usage: "how long to print telemetry after sending",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "drive",
			Usage: "send a drive command",
			Flags: []cli.Flag{
				cli.Float64Flag{Name: "throttle"},
				cli.Float64Flag{Name: "turn"},
				cli.BoolFlag{Name: "auto", Usage: "switch the rover to autonomous mode"},
			},
			Action: func(c *cli.Context) error {
				pkt, err := parser.EncodeDrive(model.DriveCommand{
					Autonomous: c.Bool("auto"),
					Throttle:   c.Float64("throttle"),
					Turn:       c.Float64("turn"),
				})
				if err != nil {
					return err
				}
				return exchange(c, pkt)
			},
		},
		{
			Name:  "goal",
			Usage: "send a destination",
			Flags: []cli.Flag{
				cli.Float64Flag{Name: "lat"},
				cli.Float64Flag{Name: "lng"},
				cli.BoolFlag{Name: "more", Usage: "more destinations follow"},
			},
			Action: func(c *cli.Context) error {
				pkt, err := parser.EncodeGoal(model.AutoGoal{
					MoreDestinations: c.Bool("more"),
					Destination:      model.Destination{Lat: c.Float64("lat"), Lng: c.Float64("lng")},
				})
				if err != nil {
					return err
				}
				return exchange(c, pkt)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("[basestation] %v", err)
	}
}

// exchange sends pkt and prints every telemetry packet received before --wait expires.
func exchange(c *cli.Context, pkt []byte) error {
	out, ok := parser.ByName(c.GlobalString("format"))
	if !ok {
		return fmt.Errorf("unknown format %q", c.GlobalString("format"))
	}
	addr, err := net.ResolveUDPAddr("udp", c.GlobalString("rover"))
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			util.Warn("[basestation] close: %v", cerr)
		}
	}()

	if _, err := conn.Write(pkt); err != nil {
		return err
	}
	util.Info("[basestation] sent %d bytes to %s", len(pkt), addr)

	if err := conn.SetReadDeadline(time.Now().Add(c.GlobalDuration("wait"))); err != nil {
		return err
	}
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			// deadline reached
			return nil
		}
		p, err := parser.Decode(buf[:n])
		if err != nil || p.Type != parser.TypeTelemetry {
			util.Warn("[basestation] ignoring packet: %v", err)
			continue
		}
		line, err := out.EncodeTelemetry(p.Telemetry)
		if err != nil {
			return err
		}
		fmt.Println(line)
	}
}
