package dataplane

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

type SocketMetrics struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
	Timeouts  uint64
	Dropped   uint64
}

// Metrics counts traffic of one socket. All Add methods may be called on
// a nil *Metrics, which makes them no-ops.
type Metrics struct {
	rxBytes   uint64
	txBytes   uint64
	rxPackets uint64
	txPackets uint64
	timeouts  uint64
	dropped   uint64

	mu                  sync.Mutex
	RxBandwidthOverTime []uint64
	TxBandwidthOverTime []uint64
	timeInterval        time.Duration
	signalChan          chan bool
}

func NewMetrics(timeInterval time.Duration) *Metrics {
	return &Metrics{
		timeInterval:        timeInterval,
		signalChan:          make(chan bool),
		RxBandwidthOverTime: make([]uint64, 0),
		TxBandwidthOverTime: make([]uint64, 0),
	}
}

func (m *Metrics) AddRx(n int) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.rxBytes, uint64(n))
	atomic.AddUint64(&m.rxPackets, 1)
}

func (m *Metrics) AddTx(n int) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.txBytes, uint64(n))
	atomic.AddUint64(&m.txPackets, 1)
}

func (m *Metrics) AddTimeout() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.timeouts, 1)
}

func (m *Metrics) AddDropped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.dropped, 1)
}

func (m *Metrics) Snapshot() SocketMetrics {
	if m == nil {
		return SocketMetrics{}
	}
	return SocketMetrics{
		RxBytes:   atomic.LoadUint64(&m.rxBytes),
		TxBytes:   atomic.LoadUint64(&m.txBytes),
		RxPackets: atomic.LoadUint64(&m.rxPackets),
		TxPackets: atomic.LoadUint64(&m.txPackets),
		Timeouts:  atomic.LoadUint64(&m.timeouts),
		Dropped:   atomic.LoadUint64(&m.dropped),
	}
}

// Collect samples the byte counters every timeInterval until Stop is called.
func (m *Metrics) Collect() {
	go func() {
		var rxLast, txLast uint64
		for {
			select {
			case <-m.signalChan:
				return
			case <-time.After(m.timeInterval):
				s := m.Snapshot()
				m.mu.Lock()
				m.RxBandwidthOverTime = append(m.RxBandwidthOverTime, s.RxBytes-rxLast)
				m.TxBandwidthOverTime = append(m.TxBandwidthOverTime, s.TxBytes-txLast)
				m.mu.Unlock()
				log.Debugf("rx %d bytes, tx %d bytes in last %s", s.RxBytes-rxLast, s.TxBytes-txLast, m.timeInterval)
				rxLast = s.RxBytes
				txLast = s.TxBytes
			}
		}
	}()
}

func (m *Metrics) Stop() {
	m.signalChan <- true
}

func (m *Metrics) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RxBandwidthOverTime)
}
