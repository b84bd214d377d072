// Package daemon wires together the shared state, the IRC connectors, the
// dispatcher, and the Unix socket listener into the running hircd process.
// The socket lifecycle (directory permissions, stale-socket detection, PID
// file, graceful shutdown) is carried over almost unchanged from an
// earlier daemon that managed a different kind of child connection —
// this plumbing has nothing to do with the protocol running over the
// socket and is reused as-is.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hircd/hircd/internal/config"
	"github.com/hircd/hircd/internal/ircconn"
	"github.com/hircd/hircd/internal/model"
	"github.com/hircd/hircd/internal/queue"
)

// Daemon is the running hircd process: a socket listener handing
// connections to clientSession, a pool of IRC connectors (one per
// configured server), and the Dispatcher serializing everything that
// touches shared state.
type Daemon struct {
	cfg        *config.Config
	socketPath string
	logger     *slog.Logger

	state      *model.State
	connectors map[model.ServerName]*ircconn.Connector

	daemonQueue *queue.Inbound
	ircQueue    *queue.Inbound
	dispatcher  *Dispatcher

	mu       sync.Mutex
	listener net.Listener
}

// New builds a Daemon from configuration. It does not open the socket or
// dial any IRC server until Run is called.
func New(cfg *config.Config, socketPath string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	serverNames := make([]model.ServerName, 0, len(cfg.Servers))
	selfNames := make(map[model.ServerName]model.UserName, len(cfg.Servers))
	for name, scfg := range cfg.Servers {
		serverNames = append(serverNames, model.ServerName(name))
		userName := scfg.UserName
		if userName == "" {
			userName = cfg.DefaultUserName
		}
		selfNames[model.ServerName(name)] = model.UserName(userName)
	}

	state := model.NewState(serverNames)
	for name, scfg := range cfg.Servers {
		for _, ch := range scfg.DefaultChannels {
			state.EnsureChannel(model.ChannelID{Server: model.ServerName(name), Channel: model.ChannelName(ch)})
		}
	}
	daemonQueue := queue.NewInbound()
	ircQueue := queue.NewInbound()

	connectors := make(map[model.ServerName]*ircconn.Connector, len(cfg.Servers))
	for name, scfg := range cfg.Servers {
		sName := model.ServerName(name)
		connectors[sName] = ircconn.New(sName, scfg, ircQueue, logger)
	}

	dispatcher := NewDispatcher(state, connectors, selfNames, daemonQueue, ircQueue, logger)

	return &Daemon{
		cfg:         cfg,
		socketPath:  socketPath,
		logger:      logger,
		state:       state,
		connectors:  connectors,
		daemonQueue: daemonQueue,
		ircQueue:    ircQueue,
		dispatcher:  dispatcher,
	}
}

// Run opens the Unix socket, starts the dispatcher and every configured IRC
// connector, and serves connections until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	socketDir := filepath.Dir(d.socketPath)
	if err := config.EnsureDir(socketDir, 0700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	dirInfo, err := os.Stat(socketDir)
	if err != nil {
		return fmt.Errorf("stat socket dir: %w", err)
	}
	if perm := dirInfo.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("socket directory %s has insecure permissions %o (expected 0700)", socketDir, perm)
	}

	if conn, err := net.DialTimeout("unix", d.socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("another daemon is already listening on %s", d.socketPath)
	}
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(d.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	d.mu.Lock()
	d.listener = listener
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		listener.Close()
		return err
	}

	d.logger.Info("daemon started", "socket", d.socketPath, "servers", len(d.connectors))

	var wg sync.WaitGroup
	for name, conn := range d.connectors {
		wg.Add(1)
		go func(name model.ServerName, conn *ircconn.Connector) {
			defer wg.Done()
			conn.Run(ctx)
		}(name, conn)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.dispatcher.Run(ctx)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			d.logger.Error("accept error", "error", err)
			continue
		}
		go runSession(conn, d.state, d.daemonQueue, d.logger)
	}

	wg.Wait()
	d.shutdown()
	return nil
}

func (d *Daemon) writePIDFile() error {
	pidPath, err := config.PIDFilePath()
	if err != nil {
		return fmt.Errorf("determine PID path: %w", err)
	}
	return config.AtomicWriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0600)
}

// shutdown removes the socket and PID file. It does not close the
// connections or outbound queues of clients that are still connected: the
// dispatcher has already stopped, so their sessions stay open until the
// client disconnects or the process exits.
func (d *Daemon) shutdown() {
	d.logger.Info("shutting down")
	os.Remove(d.socketPath)
	if pidPath, err := config.PIDFilePath(); err == nil {
		os.Remove(pidPath)
	}
}

// ClientCount reports the number of currently connected clients, for the
// metrics exporter.
func (d *Daemon) ClientCount() int { return d.state.ClientCount() }
