// Package transport implements the fork engine's fork.Transport over
// a real UDP socket: DSCP marking via golang.org/x/net/ipv4, and a
// worker pool draining a buffered channel of raw packets, handing
// decoded messages to a Router.
package transport

import (
	"net"
	"runtime"
	"sync"

	"golang.org/x/net/ipv4"

	"ForkGo/fork"
	"ForkGo/global"
	"ForkGo/sipmsg"
)

// DscpValue is a TOS byte for an outgoing SIP socket.
type DscpValue = int

const (
	DscpCS3  DscpValue = 24 << 2
	DscpAF41 DscpValue = 34 << 2
)

// Codec turns sipmsg values into wire bytes and back. Kept as an
// interface because serializing a full SIP message is outside what
// this module implements; callers supply a concrete codec such as
// JSONCodec.
type Codec interface {
	EncodeRequest(*sipmsg.Request) []byte
	EncodeResponse(*sipmsg.Response) []byte
	// Decode reports which of req/resp was populated.
	Decode(data []byte) (req *sipmsg.Request, resp *sipmsg.Response, err error)
}

type packet struct {
	addr *net.UDPAddr
	buf  *[]byte
	n    int
}

// Transport owns the UDP socket and the worker pool draining it, and
// implements fork.Transport so ForkContext.AddBranch can hand it
// outgoing requests directly.
type Transport struct {
	conn  *net.UDPConn
	codec Codec
	router *fork.Router

	workerCount int
	queue       chan packet
	bufferPool  sync.Pool

	mu    sync.Mutex
	peers map[string]*net.UDPAddr             // via branch -> destination
	txs   map[string]*outgoingTransaction     // via branch -> the transaction Router indexed
}

// Listen opens a UDP socket on ip:port, applying dscp as its outgoing
// TOS byte, and starts the worker pool that decodes and dispatches
// incoming datagrams to router.
func Listen(ip net.IP, port int, dscp DscpValue, codec Codec, router *fork.Router) (*Transport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, err
	}
	if err := ipv4.NewConn(conn).SetTOS(dscp); err != nil {
		global.LogWarning(global.LTTransport, "failed to set IPv4 TOS: "+err.Error())
	}

	t := &Transport{
		conn:        conn,
		codec:       codec,
		router:      router,
		workerCount: runtime.NumCPU(),
		queue:       make(chan packet, 2500),
		peers:       make(map[string]*net.UDPAddr),
		txs:         make(map[string]*outgoingTransaction),
	}
	t.bufferPool.New = func() any {
		buf := make([]byte, 65535)
		return &buf
	}

	t.startWorkers()
	t.readLoop()

	return t, nil
}

func (t *Transport) startWorkers() {
	global.WtGrp.Add(t.workerCount)
	for range t.workerCount {
		go t.worker()
	}
}

func (t *Transport) worker() {
	defer global.WtGrp.Done()
	for p := range t.queue {
		t.dispatch(p)
		t.bufferPool.Put(p.buf)
	}
}

func (t *Transport) readLoop() {
	global.WtGrp.Add(1)
	go func() {
		defer global.WtGrp.Done()
		for {
			buf := t.bufferPool.Get().(*[]byte)
			n, addr, err := t.conn.ReadFromUDP(*buf)
			if err != nil {
				global.LogWarning(global.LTTransport, "udp read failed: "+err.Error())
				continue
			}
			t.queue <- packet{addr: addr, buf: buf, n: n}
		}
	}()
}

func (t *Transport) dispatch(p packet) {
	req, resp, err := t.codec.Decode((*p.buf)[:p.n])
	if err != nil {
		global.LogWarning(global.LTTransport, "bad datagram from "+p.addr.String()+": "+err.Error())
		return
	}
	switch {
	case req != nil && req.Method == sipmsg.CANCEL:
		t.router.ProcessCancel(&incomingTransaction{req: req, addr: p.addr, transport: t})
	case req != nil:
		t.router.HandleIncomingRequest(t, req, &incomingTransaction{req: req, addr: p.addr, transport: t})
	case resp != nil:
		t.mu.Lock()
		tx := t.txs[resp.ViaBranch]
		t.mu.Unlock()
		if tx == nil {
			global.LogWarning(global.LTTransport, "response for unknown branch "+resp.ViaBranch+", dropped")
			return
		}
		if global.IsFinal(resp.StatusCode) {
			t.mu.Lock()
			delete(t.txs, resp.ViaBranch)
			delete(t.peers, resp.ViaBranch)
			t.mu.Unlock()
		}
		t.router.ProcessResponse(tx, resp)
	}
}

func (t *Transport) send(addr *net.UDPAddr, data []byte) {
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		global.LogWarning(global.LTTransport, "udp write failed: "+err.Error())
	}
}

// CreateClientTransaction implements fork.Transport: it remembers the
// destination for req's Via branch and sends the encoded request.
func (t *Transport) CreateClientTransaction(req *sipmsg.Request) (fork.OutgoingTransaction, error) {
	addr, err := net.ResolveUDPAddr("udp", req.RequestURI)
	if err != nil {
		return nil, err
	}
	tx := &outgoingTransaction{req: req, branch: req.ViaBranch, transport: t}
	t.mu.Lock()
	t.peers[req.ViaBranch] = addr
	t.txs[req.ViaBranch] = tx
	t.mu.Unlock()

	t.send(addr, t.codec.EncodeRequest(req))
	return tx, nil
}

// outgoingTransaction is the per-branch handle a BranchInfo holds.
type outgoingTransaction struct {
	req       *sipmsg.Request
	branch    string
	transport *Transport
}

func (o *outgoingTransaction) Request() *sipmsg.Request { return o.req }

func (o *outgoingTransaction) SendCancel() {
	if o.req == nil {
		return
	}
	cancel := o.req.Clone()
	cancel.Method = sipmsg.CANCEL
	o.transport.mu.Lock()
	addr := o.transport.peers[o.branch]
	o.transport.mu.Unlock()
	if addr != nil {
		o.transport.send(addr, o.transport.codec.EncodeRequest(cancel))
	}
}

// incomingTransaction is the handle the Router replies through for an
// incoming request.
type incomingTransaction struct {
	req       *sipmsg.Request
	addr      *net.UDPAddr
	transport *Transport
}

func (i *incomingTransaction) Request() *sipmsg.Request { return i.req }

func (i *incomingTransaction) SendResponse(resp *sipmsg.Response) {
	i.transport.send(i.addr, i.transport.codec.EncodeResponse(resp))
}
