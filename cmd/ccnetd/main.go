// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"log"
	"net"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/ccnet-go/ccnet/config"
	"github.com/ccnet-go/ccnet/diag"
	"github.com/ccnet-go/ccnet/peer"
	"github.com/ccnet-go/ccnet/pio"
	"github.com/ccnet-go/ccnet/proc"
	"github.com/ccnet-go/ccnet/session"
	"github.com/ccnet-go/ccnet/xform"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "ccnetd"
	app.Usage = "peer-to-peer messaging substrate demo node"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen, l", Value: ":9527", Usage: "local listen address"},
		cli.BoolFlag{Name: "server", Usage: "run in server role (sets session.IsServer and Factory.IsServer)"},
		cli.StringFlag{Name: "key", Value: "it's a secret", Usage: "pre-shared secret for the crypt transform"},
		cli.StringFlag{Name: "crypt", Value: "none", Usage: "aes-128, aes-192, aes-256, blowfish, twofish, tea, xtea, des, 3des, none"},
		cli.BoolFlag{Name: "nocomp", Usage: "disable the snappy compression transform"},
		cli.IntFlag{Name: "keepalive", Value: 10, Usage: "seconds between liveness probes (T1)"},
		cli.IntFlag{Name: "recyclelog", Value: 64, Usage: "capacity of the debug recycle log, 0 to disable"},
		cli.StringFlag{Name: "log", Value: "", Usage: "log file path, default stderr"},
		cli.BoolFlag{Name: "quiet", Usage: "suppress per-connection accept/close logging"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from json file, overrides flags"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		diag.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg := config.Config{
		Listen:             c.String("listen"),
		IsServer:           c.Bool("server"),
		Key:                c.String("key"),
		Crypt:              c.String("crypt"),
		NoComp:             c.Bool("nocomp"),
		KeepaliveSecs:      c.Int("keepalive"),
		RecycleLogCapacity: c.Int("recyclelog"),
		Log:                c.String("log"),
		Quiet:              c.Bool("quiet"),
	}
	if path := c.String("c"); path != "" {
		if err := cfg.Load(path); err != nil {
			return diag.Wrapf(err, "ccnetd: loading config %s", path)
		}
	}

	closeLog, err := diag.Init(VERSION == "SELFBUILD", cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	sess := session.New(cfg.IsServer)
	factory := proc.NewFactory(sess, cfg.IsServer, cfg.RecycleLogCapacity)
	factory.NoPacketTimeout = time.Duration(cfg.KeepaliveSecs) * time.Second
	factory.Trace = func(format string, args ...interface{}) {
		if !cfg.Quiet {
			log.Printf(format, args...)
		}
	}

	factory.Register(proc.KeepaliveServiceName, proc.NewKeepalive)
	factory.Register(proc.EchoServiceName, proc.NewEcho)
	factory.Register(proc.ServiceProxyName, proc.NewServiceProxy)
	factory.Register(proc.ServiceStubName, proc.NewServiceStub)

	factory.StartSweep()
	defer factory.Stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return diag.Wrap(err, "ccnetd: listen")
	}
	defer ln.Close()
	log.Printf("ccnetd: listening on %s (crypt=%s comp=%v)", cfg.Listen, cfg.Crypt, !cfg.NoComp)

	table := peer.NewTable()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return diag.Wrap(err, "ccnetd: accept")
		}
		go handleConn(conn, &cfg, factory, table)
	}
}

// handleConn wraps an accepted connection in the configured stream
// transforms, registers it in the peer table, and wires its packet
// endpoint into the router so inbound frames reach the factory.
func handleConn(conn net.Conn, cfg *config.Config, factory *proc.Factory, table *peer.Table) {
	name := conn.RemoteAddr().String()

	wrapped := net.Conn(conn)
	if cfg.Crypt != "" && cfg.Crypt != "none" {
		block, effective, err := xform.SelectCipherBlock(cfg.Crypt, []byte(cfg.Key))
		if err != nil {
			diag.Warn("ccnetd: %v", err)
		}
		cs, err := xform.NewCryptStream(wrapped, block)
		if err != nil {
			log.Printf("ccnetd: crypt handshake with %s failed: %+v", name, err)
			conn.Close()
			return
		}
		log.Printf("ccnetd: %s using cipher %s", name, effective)
		wrapped = cs
	}
	if !cfg.NoComp {
		wrapped = xform.NewCompStream(wrapped)
	}

	ep := pio.NewIncoming(nil, name, wrapped)
	entry := peer.NewEntry(name, ep, false)
	table.Put(entry)

	r := newRouter(factory, entry)
	r.attach()

	if !cfg.Quiet {
		log.Printf("ccnetd: accepted %s", name)
	}
}
