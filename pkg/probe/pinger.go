/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
)

const (
	protocolICMP       = 1
	defaultPingTimeout = 5 * time.Second
	replyBufferSize    = 1500
	identifierMod      = 65536
)

var pingPayload = []byte("hostwatch")

// ICMPPinger sends a single echo request per Ping. Unprivileged mode uses
// datagram ICMP sockets (udp4); privileged mode opens a raw ip4:icmp socket.
type ICMPPinger struct {
	privileged bool
	identifier int
	seq        atomic.Uint32
	logger     logger.Logger
}

func NewICMPPinger(privileged bool, log logger.Logger) *ICMPPinger {
	return &ICMPPinger{
		privileged: privileged,
		identifier: os.Getpid() % identifierMod,
		logger:     log,
	}
}

// Ping reports reachable on an echo reply before the context deadline and
// unreachable when none arrives. Socket and resolution failures are errors.
func (p *ICMPPinger) Ping(ctx context.Context, host string) (models.Status, error) {
	ip, err := resolveIPv4(ctx, host)
	if err != nil {
		return models.UnknownStatus, fmt.Errorf("%w: resolve %s: %w", ErrProbeFailed, host, err)
	}

	network, dst := "udp4", net.Addr(&net.UDPAddr{IP: ip})
	if p.privileged {
		network, dst = "ip4:icmp", &net.IPAddr{IP: ip}
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return models.UnknownStatus, fmt.Errorf("%w: open icmp socket: %w", ErrProbeFailed, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultPingTimeout)
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return models.UnknownStatus, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.identifier,
			Seq:  int(p.seq.Add(1) % identifierMod),
			Data: pingPayload,
		},
	}

	wire, err := msg.Marshal(nil)
	if err != nil {
		return models.UnknownStatus, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	if _, err := conn.WriteTo(wire, dst); err != nil {
		return models.UnknownStatus, fmt.Errorf("%w: send echo to %s: %w", ErrProbeFailed, host, err)
	}

	return p.awaitReply(ctx, conn, ip)
}

func (p *ICMPPinger) awaitReply(ctx context.Context, conn *icmp.PacketConn, ip net.IP) (models.Status, error) {
	buf := make([]byte, replyBufferSize)

	for {
		if ctx.Err() != nil {
			return models.StatusOf(models.StateUnreachable), nil
		}

		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return models.StatusOf(models.StateUnreachable), nil
			}

			return models.UnknownStatus, fmt.Errorf("%w: read reply: %w", ErrProbeFailed, err)
		}

		if !peerMatches(peer, ip) {
			continue
		}

		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil {
			p.logger.Debug().Err(err).Msg("Ignoring unparsable ICMP packet")

			continue
		}

		if reply.Type == ipv4.ICMPTypeEchoReply {
			return models.StatusOf(models.StateReachable), nil
		}
	}
}

func peerMatches(peer net.Addr, ip net.IP) bool {
	switch addr := peer.(type) {
	case *net.UDPAddr:
		return addr.IP.Equal(ip)
	case *net.IPAddr:
		return addr.IP.Equal(ip)
	}

	return false
}

func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}

		return nil, errNoIPv4Address
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			return v4, nil
		}
	}

	return nil, errNoIPv4Address
}
