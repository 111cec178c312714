package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/wgdzlh/floodtiles"
	"github.com/wgdzlh/floodtiles/config"
	"github.com/wgdzlh/floodtiles/log"
	"github.com/wgdzlh/floodtiles/server"

	"github.com/gosuri/uiprogress"
	"go.uber.org/zap"
)

const usage = `usage: floodtiles <command> [-config path] [args]

commands:
  validate          check input/output alignment and uncertainty range
  optimize          build cached derivatives [-force] [-progress]
  serve             build missing derivatives, then serve tiles
  watersheds        list watersheds intersecting the input image
  select <id>       persist the selected watershed id`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	cfgPath := cmd.String("config", "", "config file (default $FLOODTILES_CONFIG or "+config.DEFAULT_CONFIG_PATH+")")
	force := cmd.Bool("force", false, "regenerate derivatives even when cached")
	progress := cmd.Bool("progress", false, "show a progress bar")
	_ = cmd.Parse(os.Args[2:])

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err = log.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintf(os.Stderr, "log init error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := cfg.ToolboxOptions()
	opts.Force = *force
	switch os.Args[1] {
	case "validate":
		err = validate(cfg, opts)
	case "optimize":
		err = optimize(cfg, opts, *progress)
	case "serve":
		err = serve(ctx, cfg, opts)
	case "watersheds":
		err = watersheds(cfg, opts)
	case "select":
		err = selectWatershed(cfg, opts, cmd.Arg(0))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("command failed", zap.String("cmd", os.Args[1]), zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func validate(cfg config.Config, opts floodtiles.Options) error {
	tb := floodtiles.NewToolbox(opts)
	rep, uncMax, suspicious, err := tb.ValidateInputs(cfg.Model.InputPath, cfg.Model.OutputPath)
	if err != nil {
		return err
	}
	fmt.Printf("input  %dx%d\noutput %dx%d\nreprojected=%t resampled=%t\nuncertainty max=%g suspicious=%t\n",
		rep.InputGrid.Width, rep.InputGrid.Height, rep.OutputGrid.Width, rep.OutputGrid.Height,
		rep.Reprojected, rep.Resampled, uncMax, suspicious)
	return nil
}

func optimize(cfg config.Config, opts floodtiles.Options, progress bool) (err error) {
	if progress {
		uiprogress.Start()
		bar := uiprogress.AddBar(len(floodtiles.AllDerivatives)).AppendCompleted().PrependElapsed()
		var last atomic.Value
		last.Store("")
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return fmt.Sprintf("%-22s", last.Load())
		})
		opts.OnStep = func(k floodtiles.DerivativeKey) {
			last.Store(string(k))
			bar.Incr()
		}
		defer uiprogress.Stop()
	}
	tb := floodtiles.NewToolbox(opts)
	set, err := tb.Optimize(cfg.Model.InputPath, cfg.Model.OutputPath, cfg.Cache.Dir, cfg.Optimize.Factor)
	if set != nil {
		log.Info("optimize finished", zap.Int("written", len(set.Written)), zap.Int("cached", len(set.Cached)))
	}
	return
}

func serve(ctx context.Context, cfg config.Config, opts floodtiles.Options) error {
	tb := floodtiles.NewToolbox(opts)
	set, err := tb.Optimize(cfg.Model.InputPath, cfg.Model.OutputPath, cfg.Cache.Dir, cfg.Optimize.Factor)
	if err != nil {
		// 部分图层可用时仍启动服务，缺失的图层返回404
		if set == nil || len(set.Written)+len(set.Cached) == 0 {
			return err
		}
		log.Warn("some derivatives unavailable", zap.Error(err))
	}
	tiler := tb.NewTiler(cfg.Cache.Dir)
	session := tb.NewSession(ctx, floodtiles.SessionParams{
		InputPath:   cfg.Model.InputPath,
		BasemapURL:  cfg.Basemap.URL,
		WatershedID: cfg.Watershed.DefaultID,
	}, tiler)
	return server.New(cfg, session, tiler, tb).Run(ctx)
}

func watersheds(cfg config.Config, opts floodtiles.Options) error {
	tb := floodtiles.NewToolbox(opts)
	b, err := tb.ImageBounds(cfg.Model.InputPath)
	if err != nil {
		return err
	}
	fps, err := tb.Candidates(cfg.Watershed.Path, b)
	if err != nil {
		return err
	}
	for _, fp := range fps {
		fmt.Println(fp.ID)
	}
	// 仅有一个候选时自动选中
	if len(fps) == 1 {
		if err = config.SaveWatershedID(cfg.Path, fps[0].ID); err != nil {
			return err
		}
		log.Info("single candidate selected", zap.Int64("id", fps[0].ID))
	}
	return nil
}

func selectWatershed(cfg config.Config, opts floodtiles.Options, arg string) error {
	if arg == "" {
		return errors.New("select needs a watershed id")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid watershed id %q: %w", arg, err)
	}
	tb := floodtiles.NewToolbox(opts)
	if _, err = tb.Footprint(cfg.Watershed.Path, id); err != nil {
		return err
	}
	if err = config.SaveWatershedID(cfg.Path, id); err != nil {
		return err
	}
	log.Info("watershed selected", zap.Int64("id", id), zap.String("config", cfg.Path))
	return nil
}
