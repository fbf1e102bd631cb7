package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/atlas-live/internal/api"
	"github.com/talgya/atlas-live/internal/atlas"
	"github.com/talgya/atlas-live/internal/config"
	"github.com/talgya/atlas-live/internal/dialogue"
	"github.com/talgya/atlas-live/internal/engine"
	"github.com/talgya/atlas-live/internal/entropy"
	"github.com/talgya/atlas-live/internal/ledger"
	"github.com/talgya/atlas-live/internal/llm"
	"github.com/talgya/atlas-live/internal/memory"
	"github.com/talgya/atlas-live/internal/narrative"
	"github.com/talgya/atlas-live/internal/pacing"
	"github.com/talgya/atlas-live/internal/persistence"
	"github.com/talgya/atlas-live/internal/playback"
	"github.com/talgya/atlas-live/internal/visual"
	"github.com/talgya/atlas-live/internal/weather"
)

// station is every running component of one broadcast.
type station struct {
	bank   *memory.Bank
	router *dialogue.Router
	tour   *atlas.Tour
	player *playback.Sequencer
	sched  *engine.Scheduler
	ticker *engine.Ticker
	server *api.Server
}

// wire builds a station from cfg on top of db.
func wire(cfg config.Config, db *persistence.DB, rng entropy.Source) (*station, error) {
	store := ledger.NewStore(db)

	bank := memory.NewBank(cfg.Phrases, cfg.Memory.HardCap, rng)
	recent := memory.NewRecentSet(cfg.Memory.RecentCap)
	narrator := narrative.NewEngine(bank, recent, store, rng, cfg.Memory.ReflectionThreshold)

	itin, err := atlas.NewItinerary(cfg.Countries, recent, rng)
	if err != nil {
		return nil, fmt.Errorf("itinerary: %w", err)
	}
	drift := visual.NewDrift(visual.Config{Seed: cfg.Visual.Seed, Radius: cfg.Visual.Radius})
	opts := []atlas.TourOption{atlas.WithMeta(db), atlas.WithDrift(drift)}
	if w := weather.NewClient(cfg.Weather.APIKey, cfg.Weather.Timeout.Std()); w.Enabled() {
		opts = append(opts, atlas.WithWeather(w))
	}
	tour := atlas.NewTour(itin, narrator, store, opts...)
	tour.Resume()

	// A nil client must stay a nil interface so the router falls back to seeds.
	var gen dialogue.Generator
	if c := llm.NewClient(cfg.Generation.Endpoint, cfg.Generation.Timeout.Std(), cfg.Generation.MaxPerMinute); c != nil {
		gen = c
	} else {
		slog.Info("generation disabled, using seed scripts")
	}
	router := dialogue.NewRouter(gen, dialogue.Config{
		Topics:      cfg.Dialogue.Topics,
		Seeds:       cfg.Dialogue.Seeds,
		Tags:        dialogue.Tags{A: cfg.Dialogue.TagA, B: cfg.Dialogue.TagB},
		Temperature: cfg.Generation.Temperature,
		NameA:       cfg.Dialogue.NameA,
		NameB:       cfg.Dialogue.NameB,
	}, rng)

	var synth playback.Synthesizer
	if t := playback.NewTTS(cfg.TTS.Endpoint, cfg.TTS.Timeout.Std()); t != nil {
		synth = t
	} else {
		slog.Info("speech disabled, subtitles only")
	}
	hub := playback.NewHub(0)
	player := playback.NewSequencer(hub, synth, playback.Config{
		MsPerChar: cfg.TTS.MsPerChar,
		Voices:    cfg.RoleVoices(),
	})

	pacer := pacing.New(pacing.Config{
		Window: cfg.Pacing.Window.Std(),
		Targets: pacing.Distribution{
			Voice:   cfg.Pacing.Voice,
			Visual:  cfg.Pacing.Visual,
			Silence: cfg.Pacing.Silence,
		},
	}, pacing.WithSource(rng))

	sched := engine.NewScheduler(engine.Config{
		MaxSilenceTicks: cfg.Heartbeat.MaxSilenceTicks,
		StartDelayTicks: cfg.Heartbeat.StartDelayTicks,
		NarrateEvery:    cfg.Heartbeat.NarrateEvery,
	}, router, tour, player, pacer, db)

	server := &api.Server{
		Sched:          sched,
		Tour:           tour,
		Memory:         store,
		Plans:          db,
		Hub:            hub,
		Music:          player,
		Port:           cfg.API.Port,
		AdminKey:       cfg.API.AdminKey,
		RelayKey:       cfg.API.RelayKey,
		TriggerPerHour: cfg.API.TriggerPerHour,
		CORSOrigins:    cfg.API.CORSOrigins,
	}

	return &station{
		bank:   bank,
		router: router,
		tour:   tour,
		player: player,
		sched:  sched,
		ticker: engine.NewTicker(cfg.Heartbeat.Interval.Std()),
		server: server,
	}, nil
}

// reload applies the hot-reloadable parts of cfg: dialogue material and phrases.
func (s *station) reload(cfg config.Config) {
	s.router.SetSeeds(cfg.Dialogue.Seeds)
	s.router.SetTopics(cfg.Dialogue.Topics)
	for category, list := range cfg.Phrases {
		s.bank.SetTemplates(category, list)
	}
	slog.Info("dialogue and phrases reloaded",
		"seeds", len(cfg.Dialogue.Seeds),
		"topics", len(cfg.Dialogue.Topics),
	)
}

func newRunCmd() *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the broadcast",
		Long:  "Start the heartbeat, the scheduler and the HTTP API. Runs until interrupted.\nDialogue seeds, topics and phrases are reloaded when the config file changes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath(cmd)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create data dir: %w", err)
				}
			}
			db, err := persistence.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			slog.Info("database opened", "path", cfg.Storage.Path)

			rng := entropy.New(cfg.Entropy.RandomOrgKey)
			if cmd.Flags().Changed("seed") {
				rng = entropy.NewSeeded(seed)
				slog.Info("deterministic run", "seed", seed)
			}

			st, err := wire(cfg, db, rng)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st.sched.Attach(ctx, st.ticker)

			var wg sync.WaitGroup
			errc := make(chan error, 1)

			wg.Add(1)
			go func() {
				defer wg.Done()
				st.ticker.Run(ctx)
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := st.server.Run(ctx); err != nil {
					errc <- err
					stop()
				}
			}()

			if path != "" {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := config.Watch(ctx, path, st.reload); err != nil {
						slog.Warn("config watch stopped", "error", err)
					}
				}()
			}

			here := st.tour.Itinerary().Current()
			slog.Info("broadcast started",
				"port", cfg.API.Port,
				"interval", cfg.Heartbeat.Interval.Std(),
				"country", here.Country.Name,
				"day", here.Day,
			)

			<-ctx.Done()
			slog.Info("shutting down")
			wg.Wait()
			st.sched.Wait()

			select {
			case err := <-errc:
				return fmt.Errorf("api: %w", err)
			default:
			}
			slog.Info("broadcast stopped", "heartbeats", st.ticker.Count())
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "use a reproducible random source")
	return cmd
}
