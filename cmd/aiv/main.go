// Package main runs the detection-driven drive and weapon arm controller.
package main

import (
	"context"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	aiv "aiv_bot"
)

var logger = logging.NewLogger("aiv")

// Arguments for the command.
type Arguments struct {
	FrontFile  string `flag:"0,required,usage=front camera detection file"`
	BackFile   string `flag:"1,required,usage=back camera detection file"`
	OutputFile string `flag:"2,required,usage=output file (unused)"`
}

const usage = "usage: aiv <front-file> <back-file> <output-file>"

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	if len(args) != 4 {
		return errors.New(usage)
	}
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return errors.Wrap(err, usage)
	}

	cfg, err := aiv.LoadConfig(os.Getenv(aiv.ConfigEnvVar), logger)
	if err != nil {
		return err
	}

	opener, err := aiv.NewBusOpener(cfg)
	if err != nil {
		return err
	}

	clk := clock.New()
	arm := aiv.NewWeaponArm(aiv.NewWeaponArmConfig(cfg), opener, clk, logger.Sublogger("arm"))
	transport := aiv.NewSerialTransport(aiv.TransportConfig{
		Port:     cfg.DrivePort,
		Baudrate: cfg.DriveBaudrate,
		Timeout:  cfg.DriveTimeout,
	}, logger.Sublogger("drive"))
	reader := aiv.NewDetectionReader(argsParsed.FrontFile, argsParsed.BackFile, logger.Sublogger("detections"))

	logger.Infof("reading %s and %s, driving %s, arm on %s (%s)",
		argsParsed.FrontFile, argsParsed.BackFile, cfg.DrivePort, cfg.ArmPort, cfg.ArmProtocol)

	loop := aiv.NewControlLoop(cfg, reader, transport, arm, clk, logger.Sublogger("loop"))
	return loop.Run(ctx)
}
