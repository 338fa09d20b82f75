package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("AutoPrint.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("AutoPrint.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("AutoPrint.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerList returns ledger entries optionally filtered by statuses.
func (c *Client) LedgerList(statuses []string) (*LedgerListResponse, error) {
	var resp LedgerListResponse
	req := LedgerListRequest{Statuses: statuses}
	if err := c.client.Call("AutoPrint.LedgerList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerDescribe returns details for a single ledger entry.
func (c *Client) LedgerDescribe(id int64) (*LedgerDescribeResponse, error) {
	var resp LedgerDescribeResponse
	req := LedgerDescribeRequest{ID: id}
	if err := c.client.Call("AutoPrint.LedgerDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerClear removes all entries from the ledger.
func (c *Client) LedgerClear() (*LedgerClearResponse, error) {
	var resp LedgerClearResponse
	if err := c.client.Call("AutoPrint.LedgerClear", LedgerClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerClearArchived removes only archived entries from the ledger.
func (c *Client) LedgerClearArchived() (*LedgerClearArchivedResponse, error) {
	var resp LedgerClearArchivedResponse
	if err := c.client.Call("AutoPrint.LedgerClearArchived", LedgerClearArchivedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerClearFailed removes failed entries from the ledger.
func (c *Client) LedgerClearFailed() (*LedgerClearFailedResponse, error) {
	var resp LedgerClearFailedResponse
	if err := c.client.Call("AutoPrint.LedgerClearFailed", LedgerClearFailedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerReset resets entries stuck in processing states.
func (c *Client) LedgerReset() (*LedgerResetResponse, error) {
	var resp LedgerResetResponse
	if err := c.client.Call("AutoPrint.LedgerReset", LedgerResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerRetry retries failed entries.
func (c *Client) LedgerRetry(ids []int64) (*LedgerRetryResponse, error) {
	var resp LedgerRetryResponse
	req := LedgerRetryRequest{IDs: ids}
	if err := c.client.Call("AutoPrint.LedgerRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerRemove deletes specific entries by id.
func (c *Client) LedgerRemove(ids []int64) (*LedgerRemoveResponse, error) {
	var resp LedgerRemoveResponse
	req := LedgerRemoveRequest{IDs: ids}
	if err := c.client.Call("AutoPrint.LedgerRemove", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerHealth returns ledger diagnostics.
func (c *Client) LedgerHealth() (*LedgerHealthResponse, error) {
	var resp LedgerHealthResponse
	if err := c.client.Call("AutoPrint.LedgerHealth", LedgerHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("AutoPrint.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("AutoPrint.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Printers lists destinations known to the print system.
func (c *Client) Printers() (*PrintersResponse, error) {
	var resp PrintersResponse
	if err := c.client.Call("AutoPrint.Printers", PrintersRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
