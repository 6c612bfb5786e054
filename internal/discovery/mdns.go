// ABOUTME: mDNS advertisement of the streaming ingress
// ABOUTME: Lets relay tooling find the gateway without static addressing
package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const serviceType = "_aurelay._tcp"

// Advertiser announces the gateway's stream ingress over mDNS.
type Advertiser struct {
	name string
	port int
	log  *logrus.Entry
}

// NewAdvertiser creates an advertiser for the given instance name and
// ingress port.
func NewAdvertiser(name string, port int) *Advertiser {
	return &Advertiser{
		name: name,
		port: port,
		log:  logrus.WithField("component", "discovery"),
	}
}

// Advertise publishes the service record until the context is cancelled.
// Failure is non-fatal to the gateway; callers log and continue.
func (a *Advertiser) Advertise(ctx context.Context) error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("failed to enumerate local addresses: %w", err)
	}

	service, err := mdns.NewMDNSService(
		a.name,
		serviceType,
		"",
		"",
		a.port,
		ips,
		[]string{"path=/stream"},
	)
	if err != nil {
		return fmt.Errorf("failed to create mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to start mdns server: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"name": a.name,
		"port": a.port,
		"type": serviceType,
	}).Info("advertising stream ingress")

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// localIPs returns the addresses of interfaces that are up and not
// loopback.
func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("no usable network interface")
	}
	return ips, nil
}
