/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/Seednode/impostor/games/impostor"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// gameMetrics feeds room lifecycle changes into prometheus. Each instance owns
// its registry so tests can build as many as they like.
type gameMetrics struct {
	registry *prometheus.Registry

	rooms       prometheus.Gauge
	players     prometheus.Gauge
	online      prometheus.Gauge
	connections prometheus.Gauge
	evictions   prometheus.Counter
	games       prometheus.Counter
	ties        prometheus.Counter
	outcomes    *prometheus.CounterVec
	messages    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

func newGameMetrics() *gameMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &gameMetrics{
		registry: reg,
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "impostor_rooms",
			Help: "Rooms currently open",
		}),
		players: factory.NewGauge(prometheus.GaugeOpts{
			Name: "impostor_players",
			Help: "Players seated in open rooms, connected or not",
		}),
		online: factory.NewGauge(prometheus.GaugeOpts{
			Name: "impostor_players_connected",
			Help: "Players currently connected to their room",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "impostor_ws_active_connections",
			Help: "Open websocket connections",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "impostor_evictions_total",
			Help: "Players removed after the disconnect grace period",
		}),
		games: factory.NewCounter(prometheus.CounterOpts{
			Name: "impostor_games_started_total",
			Help: "Games started",
		}),
		ties: factory.NewCounter(prometheus.CounterOpts{
			Name: "impostor_vote_ties_total",
			Help: "Voting rounds restarted after a tie",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "impostor_games_ended_total",
			Help: "Games ended, by outcome",
		}, []string{"outcome"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "impostor_messages_total",
			Help: "Inbound websocket messages, by type",
		}, []string{"type"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "impostor_rejections_total",
			Help: "Requests rejected, by reason",
		}, []string{"reason"}),
	}
}

func (m *gameMetrics) RoomOpened()   { m.rooms.Inc() }
func (m *gameMetrics) RoomClosed()   { m.rooms.Dec() }
func (m *gameMetrics) PlayerJoined() { m.players.Inc() }
func (m *gameMetrics) GameStarted()  { m.games.Inc() }
func (m *gameMetrics) VoteTied()     { m.ties.Inc() }

func (m *gameMetrics) PlayerRemoved(evicted bool) {
	m.players.Dec()
	if evicted {
		m.evictions.Inc()
	}
}

func (m *gameMetrics) PlayerConnected(connected bool) {
	if connected {
		m.online.Inc()
	} else {
		m.online.Dec()
	}
}

func (m *gameMetrics) GameEnded(outcome impostor.Outcome) {
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (m *gameMetrics) message(kind string) {
	m.messages.WithLabelValues(kind).Inc()
}

func (m *gameMetrics) rejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

func registerMetricsHandler(cfg *Config, mux *httprouter.Router, m *gameMetrics) {
	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
