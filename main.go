package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-resty/resty/v2"

	"github.com/wavify-audio/wavify-core/config"
	"github.com/wavify-audio/wavify-core/internal/crossfade"
	"github.com/wavify-audio/wavify-core/internal/engine"
	"github.com/wavify-audio/wavify-core/internal/eqsettings"
	"github.com/wavify-audio/wavify-core/internal/extractor"
	"github.com/wavify-audio/wavify-core/internal/kvstore"
	"github.com/wavify-audio/wavify-core/internal/library"
	"github.com/wavify-audio/wavify-core/internal/playback"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/radio"
	"github.com/wavify-audio/wavify-core/internal/radio/service"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("starting wavify-core", "addr", cfg.ListenAddr, "music_dir", cfg.MusicDir)

	kv, err := kvstore.Open(cfg.KVStorePath)
	if err != nil {
		slog.Error("failed to open kv store", "error", err)
		os.Exit(1)
	}

	eqStore := eqsettings.New(kv)
	q := queue.New()

	ring := ringbuffer.NewSlot()
	audio := engine.New(float64(cfg.EngineSampleRate))
	audio.BindSlot(engine.SlotA, ring.ActiveFullMix())
	audio.BindSlot(engine.SlotB, ring.StandbyFullMix())
	audio.BindStems(engine.SlotA, ring.ActiveStems())
	audio.BindStems(engine.SlotB, ring.StandbyStems())

	applyEQ := func(s eqsettings.Settings) {
		var gains [10]float64
		for i, b := range s.Bands {
			if s.Enabled {
				gains[i] = b.GainDB
			}
		}
		audio.SetEQGains(gains)
		audio.SetMegaBassPreset(s.Preset == eqsettings.PresetMegaBass)
	}
	applyEQ(eqStore.Current())

	if err := audio.Start(); err != nil {
		slog.Error("failed to start audio engine", "error", err)
		os.Exit(1)
	}
	defer audio.Stop()

	extractorClient := resty.New().SetTimeout(cfg.ExtractorHTTPTimeout)
	ex := extractor.New(extractorClient, cfg.ExtractorEnableWeb, cfg.ExtractorEnableProxy, nil)

	if cfg.MusicDir != "" {
		localLibrary := library.New()
		if _, err := localLibrary.Scan(cfg.MusicDir); err != nil {
			slog.Warn("local library scan failed", "dir", cfg.MusicDir, "error", err)
		} else {
			q.SetOnNeedRecommendations(func() {
				current, _ := q.Current()
				exclude := map[string]bool{current.VideoID: true}
				recs := localLibrary.RandomRecommendations(10, exclude)
				if len(recs) == 0 {
					return
				}
				q.AppendRecommendations(recs)
			})
		}
	}

	player := service.NewPlayer(cfg, q, eqStore, ex)

	pb := playback.New(ring, audio, player.Hooks())
	cx := crossfade.New(ring, audio, cfg.CrossfadePremium, player.CrossfadeHooks())
	cx.EnableLearnedProfileSelection(
		crossfade.NewTransitionStats(kv),
		[]crossfade.Profile{crossfade.ProfileSmooth, crossfade.ProfileDJMix, crossfade.ProfileDrop},
	)
	player.Bind(pb, cx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go player.RunLoop(ctx)

	go func() {
		ch, unsubscribe := eqStore.Subscribe()
		defer unsubscribe()
		for {
			select {
			case s := <-ch:
				applyEQ(s)
			case <-ctx.Done():
				return
			}
		}
	}()

	server := radio.NewServer(cfg, player, eqStore)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
