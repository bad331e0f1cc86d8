package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors on a private registry so tests can
// build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	QueueJoins      prometheus.Counter
	MatchesProposed prometheus.Counter
	MatchesStarted  prometheus.Counter
	MatchTimeouts   prometheus.Counter
	PlayersLeft     prometheus.Counter
	Moves           *prometheus.CounterVec
	GamesFinished   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		QueueJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connect4r",
			Name:      "queue_joins_total",
			Help:      "Players added to the waiting queue.",
		}),
		MatchesProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connect4r",
			Name:      "matches_proposed_total",
			Help:      "Tentative matches handed to a proposer.",
		}),
		MatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connect4r",
			Name:      "matches_started_total",
			Help:      "Rendezvous that ended with a confirmed game.",
		}),
		MatchTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connect4r",
			Name:      "match_timeouts_total",
			Help:      "Rendezvous abandoned because the opponent never confirmed.",
		}),
		PlayersLeft: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connect4r",
			Name:      "players_left_total",
			Help:      "Leave requests that removed an active game.",
		}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect4r",
			Name:      "moves_total",
			Help:      "Accepted moves by kind.",
		}, []string{"kind"}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connect4r",
			Name:      "games_finished_total",
			Help:      "Games that reached a terminal state, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.QueueJoins,
		m.MatchesProposed,
		m.MatchesStarted,
		m.MatchTimeouts,
		m.PlayersLeft,
		m.Moves,
		m.GamesFinished,
		collectors.NewGoCollector(),
	)
	return m
}

// WatchQueue publishes fn as the waiting-queue gauge, sampled on each scrape.
func (m *Metrics) WatchQueue(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "connect4r",
		Name:      "waiting_players",
		Help:      "Players currently eligible for pairing.",
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
