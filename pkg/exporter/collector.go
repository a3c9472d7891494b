package exporter

import (
	"fmt"
	"time"

	"github.com/irctrakz/wgexporter/pkg/dump"
	"github.com/irctrakz/wgexporter/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultOnlineWindow is how recent a handshake must be for peer_info to
// report 1.
const DefaultOnlineWindow = 10 * time.Minute

// deviceInfoPlaceholder is what device_info reports for every interface.
// It is a placeholder, not a liveness signal; nothing in the dump defines
// interface liveness yet.
const deviceInfoPlaceholder = 1

var (
	peerLabels   = []string{"interface", "public_key", "allowed_ips"}
	deviceLabels = []string{"interface", "public_key"}
)

// ScrapeProjectionError describes a record left out of one series.
type ScrapeProjectionError struct {
	Series    string
	Interface string
	PublicKey string
	Reason    string
}

func (e *ScrapeProjectionError) Error() string {
	return fmt.Sprintf("%s: interface=%q public_key=%q: %s", e.Series, e.Interface, e.PublicKey, e.Reason)
}

// CollectorOptions tunes the projection.
type CollectorOptions struct {
	Namespace    string
	OnlineWindow time.Duration
	Now          func() time.Time
	// Metrics receives projection error counts. Optional.
	Metrics *SelfMetrics
}

// Collector projects the current snapshot into peer and device series on
// every scrape. It never blocks on the status command.
type Collector struct {
	store   *Store
	window  time.Duration
	now     func() time.Time
	metrics *SelfMetrics
	log     *logrus.Entry

	sentBytes     *prometheus.Desc
	receivedBytes *prometheus.Desc
	handshake     *prometheus.Desc
	peerInfo      *prometheus.Desc
	deviceInfo    *prometheus.Desc
}

// NewCollector returns a collector reading from store. Zero options mean
// the "wireguard" namespace and a 10 minute online window.
func NewCollector(store *Store, opts CollectorOptions) *Collector {
	if opts.Namespace == "" {
		opts.Namespace = "wireguard"
	}
	if opts.OnlineWindow <= 0 {
		opts.OnlineWindow = DefaultOnlineWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	name := func(n string) string { return prometheus.BuildFQName(opts.Namespace, "", n) }
	return &Collector{
		store:   store,
		window:  opts.OnlineWindow,
		now:     opts.Now,
		metrics: opts.Metrics,
		log:     logging.WithComponent("collector"),

		sentBytes: prometheus.NewDesc(name("sent_bytes_total"),
			"Bytes sent to the peer.", peerLabels, nil),
		receivedBytes: prometheus.NewDesc(name("received_bytes_total"),
			"Bytes received from the peer.", peerLabels, nil),
		handshake: prometheus.NewDesc(name("latest_handshake_seconds"),
			"Unix time of the latest handshake with the peer, 0 if none.", peerLabels, nil),
		peerInfo: prometheus.NewDesc(name("peer_info"),
			fmt.Sprintf("1 if the peer completed a handshake within the last %s, else 0.", opts.OnlineWindow), peerLabels, nil),
		deviceInfo: prometheus.NewDesc(name("device_info"),
			"Placeholder series, one per local interface. The value is constant and not a liveness signal.", deviceLabels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sentBytes
	ch <- c.receivedBytes
	ch <- c.handshake
	ch <- c.peerInfo
	ch <- c.deviceInfo
}

// Collect implements prometheus.Collector. Before the first successful
// refresh it emits nothing.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.store.Load()
	if snap == nil {
		return
	}
	now := c.now()

	for _, p := range snap.Peers() {
		if err := checkPeer(p); err != nil {
			c.projectionError(err)
			continue
		}
		labels := []string{p.Interface, p.PublicKey, p.AllowedIPs}
		ch <- prometheus.MustNewConstMetric(c.sentBytes, prometheus.CounterValue, float64(p.TransferTx), labels...)
		ch <- prometheus.MustNewConstMetric(c.receivedBytes, prometheus.CounterValue, float64(p.TransferRx), labels...)
		ch <- prometheus.MustNewConstMetric(c.handshake, prometheus.GaugeValue, float64(p.LatestHandshake), labels...)
		ch <- prometheus.MustNewConstMetric(c.peerInfo, prometheus.GaugeValue, c.online(p, now), labels...)
	}

	for _, iface := range snap.Interfaces() {
		labels, err := exposedDeviceLabels(iface)
		if err != nil {
			c.projectionError(err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.deviceInfo, prometheus.GaugeValue, deviceInfoPlaceholder, labels...)
	}
}

func (c *Collector) online(p dump.PeerRecord, now time.Time) float64 {
	hs, ok := p.HandshakeTime()
	if !ok {
		return 0
	}
	if now.Sub(hs) < c.window {
		return 1
	}
	return 0
}

func (c *Collector) projectionError(err *ScrapeProjectionError) {
	if c.metrics != nil {
		c.metrics.ProjectionErrors.Inc()
	}
	c.log.Debug(err.Error())
}

func checkPeer(p dump.PeerRecord) *ScrapeProjectionError {
	switch {
	case p.Interface == "":
		return &ScrapeProjectionError{Series: "peer", PublicKey: p.PublicKey, Reason: "missing interface"}
	case p.PublicKey == "":
		return &ScrapeProjectionError{Series: "peer", Interface: p.Interface, Reason: "missing public key"}
	}
	return nil
}

// exposedDeviceLabels is the only place interface records become label
// values. It reads the interface name and public key and nothing else.
func exposedDeviceLabels(r dump.InterfaceRecord) ([]string, *ScrapeProjectionError) {
	if r.Interface == "" {
		return nil, &ScrapeProjectionError{Series: "device_info", PublicKey: r.PublicKey, Reason: "missing interface"}
	}
	return []string{r.Interface, r.PublicKey}, nil
}
