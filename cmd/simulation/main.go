// Hardware simulator: creates socat virtual serial pairs and plays a sensor board
// and a GPS receiver on one end of each. Point board.device and gps.device of the
// rover configuration at the other ends to run without hardware.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"RoverDrive/internal/device"
	"RoverDrive/internal/model"
	"RoverDrive/internal/util"
)

func main() {
	util.SetupLogger()

	app := cli.NewApp()
	app.Name = "simulation"
	app.Usage = "simulate the sensor board and GPS on virtual serial ports"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "board", Value: "/tmp/ttyBoard", Usage: "link the rover opens for the board"},
		cli.StringFlag{Name: "gps", Value: "/tmp/ttyGPS", Usage: "link the rover opens for the GPS"},
		cli.IntFlag{Name: "interval", Value: 100, Usage: "ms between simulated lines"},
		cli.Float64Flag{Name: "lat", Value: 21.0285},
		cli.Float64Flag{Name: "lng", Value: 105.8048},
		cli.Float64Flag{Name: "pot-lo", Value: 0.2, Usage: "lowest simulated potentiometer reading"},
		cli.Float64Flag{Name: "pot-hi", Value: 0.45, Usage: "highest simulated potentiometer reading"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		util.Error("[simulation] %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	socat := util.NewSocatManager()
	defer socat.Cleanup()

	boardSim, gpsSim := c.String("board")+".sim", c.String("gps")+".sim"
	if err := socat.CreatePair(boardSim, c.String("board")); err != nil {
		return err
	}
	if err := socat.CreatePair(gpsSim, c.String("gps")); err != nil {
		return err
	}

	boardDev, err := device.NewSerialDevice(boardSim, 115200)
	if err != nil {
		return err
	}
	gpsDev, err := device.NewSerialDevice(gpsSim, 9600)
	if err != nil {
		_ = boardDev.Close()
		return err
	}
	board := device.NewBoard("sim", boardDev)
	gps := device.NewGpsDevice("sim", gpsDev)
	defer board.Stop()
	defer gps.Stop()

	stop := make(chan struct{})
	interval := time.Duration(c.Int("interval")) * time.Millisecond
	go func() {
		_ = board.Simulate(stop, interval, c.Float64("pot-lo"), c.Float64("pot-hi"))
	}()

	pos := model.Position{Lat: c.Float64("lat"), Lng: c.Float64("lng")}
	go func() {
		_ = gps.Simulate(stop, interval, func() model.Position {
			pos.Lat += 0.000001
			return pos
		})
	}()

	util.Info("[simulation] board on %s, gps on %s", c.String("board"), c.String("gps"))
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	close(stop)
	util.Info("[simulation] stopping")
	return nil
}
