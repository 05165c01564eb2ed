// Command cardscan finds playing cards in table photos. It runs as an MCP
// server on stdio or as a one-shot or watching command-line tool.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ironsheep/cardscan/internal/pipeline"
	"github.com/ironsheep/cardscan/internal/server"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Flags.
const (
	flagConfig   = "config"
	flagPreset   = "preset"
	flagBackend  = "backend"
	flagLogLevel = "log-level"
	flagLogFile  = "log-file"
	flagOut      = "out"
	flagOutDir   = "out-dir"
	flagDir      = "dir"
	flagWorkers  = "workers"
	flagRejected = "include-rejected"
	flagFill     = "fill"
)

// Log file rotation.
const (
	logMaxSize   = 50 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cardscan:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "cardscan",
		Usage:   "find playing cards in table photos",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "JSON config file overlaid on the preset",
			},
			&cli.StringFlag{
				Name:  flagPreset,
				Value: "cards",
				Usage: "base configuration: cards or leaves",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "contour extractor: native or opencv (overrides the config)",
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Value:   "info",
				EnvVars: []string{"CARDSCAN_LOG_LEVEL"},
				Usage:   "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:    flagLogFile,
				EnvVars: []string{"CARDSCAN_LOG_FILE"},
				Usage:   "write logs to this rotated file instead of stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the MCP server on stdin/stdout",
				Action: serveAction,
			},
			{
				Name:      "detect",
				Usage:     "print a JSON report per image",
				ArgsUsage: "IMAGE...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagWorkers,
						Value: 2,
						Usage: "images processed in parallel",
					},
					&cli.BoolFlag{
						Name:  flagRejected,
						Usage: "include the verdict for every contour",
					},
				},
				Action: detectAction,
			},
			{
				Name:      "annotate",
				Usage:     "draw contours and detected cards over an image",
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{outFlag()},
				Action:    renderAction(renderAnnotate),
			},
			{
				Name:      "mask",
				Usage:     "black out everything but the detected cards",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					outFlag(),
					&cli.StringFlag{
						Name:  flagFill,
						Usage: "hex colour for everything outside the cards",
						Value: "#000000",
					},
				},
				Action: renderAction(renderMask),
			},
			{
				Name:      "binarize",
				Usage:     "write the binary image the contour stage sees",
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{outFlag()},
				Action:    renderAction(renderBinary),
			},
			{
				Name:  "watch",
				Usage: "detect cards in every image dropped into a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagDir,
						Required: true,
						Usage:    "directory to watch",
					},
					&cli.StringFlag{
						Name:  flagOutDir,
						Usage: "also write an annotated copy of each image here",
					},
				},
				Action: watchAction,
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "cardscan %s\n", Version)
					fmt.Fprintf(c.App.Writer, "  Build time: %s\n", BuildTime)
					fmt.Fprintf(c.App.Writer, "  Git commit: %s\n", GitCommit)
					return nil
				},
			},
		},
	}
}

func outFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     flagOut,
		Aliases:  []string{"o"},
		Required: true,
		Usage:    "output image; the extension picks the format",
	}
}

// newLogger builds the process logger. Logs never go to stdout, which
// belongs to the MCP protocol and to JSON reports.
func newLogger(level, file string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "bad log level")
	}
	var sink io.Writer = os.Stderr
	encCfg := zap.NewDevelopmentEncoderConfig()
	enc := zapcore.NewConsoleEncoder(encCfg)
	if file != "" {
		sink = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(sink), lvl)
	return zap.New(core).Sugar(), nil
}

// loadConfig resolves the preset, config file and backend flag, in that
// order.
func loadConfig(c *cli.Context) (pipeline.Config, error) {
	cfg, err := pipeline.Preset(c.String(flagPreset))
	if err != nil {
		return cfg, err
	}
	if path := c.String(flagConfig); path != "" {
		if cfg, err = pipeline.LoadConfig(path, cfg); err != nil {
			return cfg, err
		}
	}
	if b := c.String(flagBackend); b != "" {
		cfg.Backend = pipeline.Backend(strings.ToLower(b))
	}
	return cfg, nil
}

// setup returns the logger and a validated pipeline for a command.
func setup(c *cli.Context) (*zap.SugaredLogger, *pipeline.Pipeline, error) {
	log, err := newLogger(c.String(flagLogLevel), c.String(flagLogFile))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return log, p, nil
}

func serveAction(c *cli.Context) error {
	log, p, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Debugw("starting MCP server", "version", Version, "built", BuildTime, "commit", GitCommit)
	server.Version = Version
	srv, err := server.New(p.Config(), log)
	if err != nil {
		return err
	}
	return srv.Run()
}
