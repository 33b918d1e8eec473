package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hutx/OpenGlass/internal/config"
	"github.com/hutx/OpenGlass/internal/metrics"
	"github.com/hutx/OpenGlass/internal/protocol"
	"github.com/hutx/OpenGlass/internal/stream"
)

// ingestChannels are the channels that get a queue and a worker
var ingestChannels = []protocol.Channel{protocol.ChannelPhoto, protocol.ChannelAudio}

// UDPServer receives notifications forwarded by the BLE bridge. Every
// channel has its own queue and worker, so notifications of one channel are
// dispatched in arrival order.
type UDPServer struct {
	conn       *net.UDPConn
	config     *config.ServerConfig
	logger     *slog.Logger
	dispatcher *stream.Dispatcher
	sink       stream.Sink
	metrics    *metrics.Metrics

	// Concurrency management
	ctx       context.Context
	cancel    context.CancelFunc
	receiveWG sync.WaitGroup
	workerWG  sync.WaitGroup

	// Per-channel notification queues
	queues map[protocol.Channel]chan *incomingPacket

	// Counters
	datagramsReceived  uint64
	datagramsProcessed uint64
	datagramsDropped   uint64
	parseErrors        uint64
	dispatchErrors     uint64
	deliveryErrors     uint64
	mu                 sync.RWMutex
}

// incomingPacket represents a received notification with metadata
type incomingPacket struct {
	datagram   *protocol.Datagram
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, dispatcher *stream.Dispatcher, sink stream.Sink, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	queues := make(map[protocol.Channel]chan *incomingPacket, len(ingestChannels))
	for _, ch := range ingestChannels {
		queues[ch] = make(chan *incomingPacket, cfg.QueueSize)
	}

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		sink:       sink,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		queues:     queues,
	}
}

// Start begins listening for datagrams
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("queue_size", s.config.QueueSize),
	)

	for _, ch := range ingestChannels {
		s.workerWG.Add(1)
		go s.channelWorker(ch, s.queues[ch])
	}

	s.receiveWG.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound address; nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server. Queued notifications are drained
// before it returns.
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	// Close UDP connection to unblock the receive loop
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// Queues are closed only once nothing can send on them
	s.receiveWG.Wait()
	for _, queue := range s.queues {
		close(queue)
	}
	s.workerWG.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("datagrams_processed", stats.DatagramsProcessed),
		slog.Uint64("datagrams_dropped", stats.DatagramsDropped),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	return nil
}

// receiveLoop is the main datagram receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.receiveWG.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.datagramsReceived++
		s.mu.Unlock()
		s.metrics.RecordDatagramReceived()

		// ParseDatagram copies the notification, so the buffer can be reused
		datagram, err := protocol.ParseDatagram(buffer[:n])
		if err != nil {
			s.mu.Lock()
			s.parseErrors++
			s.mu.Unlock()
			s.metrics.RecordParseError()

			s.logger.Warn("Failed to parse datagram",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("datagram_size", n),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.enqueue(&incomingPacket{
			datagram:   datagram,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		})
	}
}

// enqueue hands a packet to its channel worker without blocking
func (s *UDPServer) enqueue(packet *incomingPacket) {
	channel := packet.datagram.Channel
	queue := s.queues[channel]

	select {
	case queue <- packet:
		s.metrics.SetQueueSize(channel.String(), len(queue))
	default:
		s.mu.Lock()
		s.datagramsDropped++
		s.mu.Unlock()
		s.metrics.RecordDatagramDropped(channel.String())

		s.logger.Warn("Channel queue full, dropping notification",
			slog.String("channel", channel.String()),
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("notification_size", len(packet.datagram.Notification)),
		)
	}
}

// channelWorker dispatches the notifications of one channel in order
func (s *UDPServer) channelWorker(channel protocol.Channel, queue <-chan *incomingPacket) {
	defer s.workerWG.Done()

	s.logger.Debug("Channel worker started", slog.String("channel", channel.String()))

	for packet := range queue {
		s.handlePacket(packet)
		s.metrics.SetQueueSize(channel.String(), len(queue))
	}

	s.logger.Debug("Channel worker stopped", slog.String("channel", channel.String()))
}

// handlePacket dispatches one notification and delivers a finished artifact
func (s *UDPServer) handlePacket(packet *incomingPacket) {
	channel := packet.datagram.Channel

	artifact, err := s.dispatcher.Handle(channel, packet.datagram.Notification)
	if err != nil {
		s.mu.Lock()
		s.dispatchErrors++
		s.mu.Unlock()

		s.logger.Debug("Notification rejected",
			slog.String("channel", channel.String()),
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.datagramsProcessed++
	s.mu.Unlock()

	if artifact == nil {
		return
	}

	// Delivery must outlive shutdown so drained artifacts are still stored
	if err := s.sink.Deliver(context.Background(), *artifact); err != nil {
		s.mu.Lock()
		s.deliveryErrors++
		s.mu.Unlock()
		s.metrics.RecordStoreError()

		s.logger.Error("Failed to deliver artifact",
			slog.String("kind", string(artifact.Kind)),
			slog.String("channel", channel.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Debug("Artifact delivered",
		slog.String("kind", string(artifact.Kind)),
		slog.Int("size", len(artifact.Bytes())),
		slog.Duration("latency", time.Since(packet.timestamp)),
	)
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queues := make(map[string]QueueStatistics, len(s.queues))
	for ch, queue := range s.queues {
		queues[ch.String()] = QueueStatistics{
			Size:     uint64(len(queue)),
			Capacity: uint64(cap(queue)),
		}
	}

	return ServerStatistics{
		DatagramsReceived:  s.datagramsReceived,
		DatagramsProcessed: s.datagramsProcessed,
		DatagramsDropped:   s.datagramsDropped,
		ParseErrors:        s.parseErrors,
		DispatchErrors:     s.dispatchErrors,
		DeliveryErrors:     s.deliveryErrors,
		Queues:             queues,
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	DatagramsReceived  uint64                     `json:"datagrams_received"`
	DatagramsProcessed uint64                     `json:"datagrams_processed"`
	DatagramsDropped   uint64                     `json:"datagrams_dropped"`
	ParseErrors        uint64                     `json:"parse_errors"`
	DispatchErrors     uint64                     `json:"dispatch_errors"`
	DeliveryErrors     uint64                     `json:"delivery_errors"`
	Queues             map[string]QueueStatistics `json:"queues"`
}

// QueueStatistics describes one channel queue
type QueueStatistics struct {
	Size     uint64 `json:"size"`
	Capacity uint64 `json:"capacity"`
}
