package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sort"
	"sync"

	"autoprint/internal/daemon"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("AutoPrint", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun autoprint stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC")
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC")
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.WindowOpen = status.Pipeline.WindowOpen
	resp.LedgerDBPath = status.LedgerDBPath
	resp.LockPath = status.LockFilePath
	resp.PID = status.PID
	resp.LastError = status.Pipeline.LastError
	resp.PrintedToday = status.Pipeline.PrintedToday
	resp.PrintedTotal = status.Pipeline.PrintedTotal
	resp.LedgerStats = make(map[string]int, len(status.Pipeline.LedgerStats))
	for k, v := range status.Pipeline.LedgerStats {
		resp.LedgerStats[string(k)] = v
	}
	if status.Pipeline.LastEntry != nil {
		dto := FromEntry(status.Pipeline.LastEntry)
		resp.LastEntry = &dto
	}
	if len(status.Pipeline.StageHealth) > 0 {
		names := make([]string, 0, len(status.Pipeline.StageHealth))
		for name := range status.Pipeline.StageHealth {
			names = append(names, name)
		}
		sort.Strings(names)
		resp.StageHealth = make([]StageHealth, 0, len(names))
		for _, name := range names {
			health := status.Pipeline.StageHealth[name]
			resp.StageHealth = append(resp.StageHealth, StageHealth{
				Name:   name,
				Ready:  health.Ready,
				Detail: health.Detail,
			})
		}
	}
	return nil
}

func (s *service) LedgerList(req LedgerListRequest, resp *LedgerListResponse) error {
	statuses := make([]ledger.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := ledger.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	entries, err := s.daemon.ListLedger(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Entries = make([]LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		resp.Entries = append(resp.Entries, FromEntry(entry))
	}
	return nil
}

func (s *service) LedgerDescribe(req LedgerDescribeRequest, resp *LedgerDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid ledger entry id %d", req.ID)
	}
	entry, err := s.daemon.GetEntry(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("ledger entry %d not found", req.ID)
	}
	resp.Entry = FromEntry(entry)
	return nil
}

func (s *service) LedgerClear(_ LedgerClearRequest, resp *LedgerClearResponse) error {
	removed, err := s.daemon.ClearLedger(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("ledger cleared", logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LedgerClearArchived(_ LedgerClearArchivedRequest, resp *LedgerClearArchivedResponse) error {
	removed, err := s.daemon.ClearArchived(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("ledger archived entries cleared", logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LedgerClearFailed(_ LedgerClearFailedRequest, resp *LedgerClearFailedResponse) error {
	removed, err := s.daemon.ClearFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("ledger failed entries cleared", logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LedgerReset(_ LedgerResetRequest, resp *LedgerResetResponse) error {
	updated, err := s.daemon.ResetStuck(s.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("ledger stuck entries reset", logging.Int64("updated_count", updated))
	return nil
}

func (s *service) LedgerRetry(req LedgerRetryRequest, resp *LedgerRetryResponse) error {
	updated, err := s.daemon.RetryFailed(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("ledger entries retried", logging.Int64("updated_count", updated))
	return nil
}

func (s *service) LedgerRemove(req LedgerRemoveRequest, resp *LedgerRemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("ledger remove requires at least one id")
	}
	removed, err := s.daemon.RemoveEntries(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("ledger entries removed", logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LedgerHealth(_ LedgerHealthRequest, resp *LedgerHealthResponse) error {
	health, err := s.daemon.LedgerHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Printed = health.Printed
	resp.Archived = health.Archived
	resp.Failed = health.Failed
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalEntries = health.TotalEntries
	resp.Error = health.Error
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}

func (s *service) Printers(_ PrintersRequest, resp *PrintersResponse) error {
	printers, err := s.daemon.ListPrinters(s.ctx)
	if err != nil {
		return err
	}
	resp.Printers = printers
	return nil
}
