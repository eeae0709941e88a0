package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/adapters/transport"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/config"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/media"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/rtc"
)

func main() {
	room := flag.String("room", "", "room id to join (required)")
	kind := flag.String("kind", "circle", "room kind: stream or circle")
	peer := flag.String("peer", "", "local peer id (default: random)")
	view := flag.Bool("view", false, "view only, skip camera/microphone")
	offer := flag.String("offer", "", "comma-separated peer ids to connect to")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if *room == "" {
		log.Fatal().Msg("-room is required")
	}
	self := *peer
	if self == "" {
		self = uuid.NewString()
	}
	sess, err := domain.NewSession(domain.RoomKind(*kind), domain.RoomID(*room), domain.PeerID(self))
	if err != nil {
		log.Fatal().Err(err).Msg("bad session")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var tr core.Transport
	switch cfg.Transport {
	case "redis":
		r, err := transport.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis transport")
		}
		defer r.Close()
		tr = r
	default:
		r, err := transport.DialRelay(ctx, cfg.RelayURL)
		if err != nil {
			log.Fatal().Err(err).Msg("relay transport")
		}
		defer r.Close()
		tr = r
	}

	selector, err := rtc.DefaultSelector()
	if err != nil {
		log.Fatal().Err(err).Msg("codec selector")
	}
	api, err := rtc.NewAPI(selector)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}

	watch, err := rtc.NewWatch(rtc.Options{
		Session:            sess,
		Transport:          tr,
		Links:              rtc.NewLinkFactory(api, rtc.Configuration(cfg.STUNServers)),
		Backend:            media.NewDevices(selector),
		NegotiationTimeout: cfg.NegotiationTimeout,
		Callbacks: rtc.Callbacks{
			OnRemoteStream: func(peer domain.PeerID, s core.RemoteStream) {
				log.Info().Str("peer", string(peer)).Str("stream", s.ID()).Msg("remote stream up")
			},
			OnPeerDisconnected: func(peer domain.PeerID) {
				log.Info().Str("peer", string(peer)).Msg("peer left")
			},
			OnProtocolError: func(peer domain.PeerID, err error) {
				log.Warn().Err(err).Str("peer", string(peer)).Msg("protocol error")
			},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session setup")
	}
	defer watch.Close()

	if err := watch.Start(ctx, *view); err != nil {
		log.Fatal().Err(err).Msg("start session")
	}
	log.Info().Str("room", *room).Str("self", self).Bool("view", *view).Msg("joined")

	if *offer != "" {
		for _, target := range strings.Split(*offer, ",") {
			target = strings.TrimSpace(target)
			if target == "" {
				continue
			}
			if err := watch.ConnectToPeer(domain.PeerID(target)); err != nil {
				log.Error().Err(err).Str("peer", target).Msg("connect")
			}
		}
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
}
