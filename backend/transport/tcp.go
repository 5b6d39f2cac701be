package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

const defaultDialTimeout = 5 * time.Second

// ProxyOptions describes an upstream SOCKS5 proxy. Only socks5 is supported
// for raw TCP sessions.
type ProxyOptions struct {
	Type string
	Host string
	Port string
	User string
	Pass string
}

// Dialer opens TCP line sessions, optionally through a proxy.
type Dialer struct {
	Timeout     time.Duration
	ReadTimeout time.Duration
	Proxy       *ProxyOptions
}

// Conn is a TCP line session. It is not safe for concurrent use.
type Conn struct {
	conn        net.Conn
	codec       *lineCodec
	readTimeout time.Duration
}

func (d Dialer) Dial(ctx context.Context, host string, port int) (*Conn, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("empty host")
	}
	if port <= 0 || port > 65535 {
		return nil, pkgerrors.Errorf("invalid port %d", port)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dial, err := d.dialFunc()
	if err != nil {
		return nil, err
	}
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "dial %s", addr)
	}
	return newConn(conn, d.ReadTimeout), nil
}

func (d Dialer) dialFunc() (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	direct := &net.Dialer{Timeout: timeout}
	if d.Proxy == nil {
		return direct.DialContext, nil
	}

	switch strings.ToLower(strings.TrimSpace(d.Proxy.Type)) {
	case "socks5", "socks5h":
	default:
		return nil, pkgerrors.Errorf("unsupported proxy type %q for tcp sessions", d.Proxy.Type)
	}
	var auth *proxy.Auth
	if d.Proxy.User != "" {
		auth = &proxy.Auth{User: d.Proxy.User, Password: d.Proxy.Pass}
	}
	proxyAddr := net.JoinHostPort(d.Proxy.Host, d.Proxy.Port)
	pd, err := proxy.SOCKS5("tcp", proxyAddr, auth, direct)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "socks5 proxy %s", proxyAddr)
	}
	cd, ok := pd.(proxy.ContextDialer)
	if !ok {
		return func(_ context.Context, network, addr string) (net.Conn, error) {
			return pd.Dial(network, addr)
		}, nil
	}
	return cd.DialContext, nil
}

func newConn(conn net.Conn, readTimeout time.Duration) *Conn {
	return &Conn{
		conn:        conn,
		codec:       newLineCodec(conn, conn),
		readTimeout: readTimeout,
	}
}

func (c *Conn) SendLine(line string) error {
	if c.readTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.readTimeout))
	}
	if err := c.codec.writeLine(line); err != nil {
		return pkgerrors.Wrap(err, "write line")
	}
	return nil
}

// ReadLine blocks for at most the read timeout; a zero timeout waits forever.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	line, err := c.codec.readLine()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", pkgerrors.Wrapf(ErrReadTimeout, "after %s", c.readTimeout)
		}
		return "", pkgerrors.Wrap(err, "read line")
	}
	return line, nil
}

func (c *Conn) Close() error {
	if !c.codec.markClosed() {
		return nil
	}
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
