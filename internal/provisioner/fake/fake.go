// Package fake is a reference Provisioner for tests and local demo wiring,
// grounded on the teacher's pkg/cloudprovider/fake.CloudProvider: a
// call-tracking, mutex-guarded stand-in that simulates the external
// platform's async lifecycle deterministically enough for tests to drive.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/partycluster/fleetcontroller/internal/provisioner"
)

// Provisioner simulates a provisioning backend in-process. By default every
// cluster goes Creating -> Ready on its first Status() poll and
// Deleting -> ClusterNotFound on its first Status() poll after Delete(),
// but CreatingTicks/DeletingTicks let tests hold a cluster in an
// intermediate state for a configured number of polls.
type Provisioner struct {
	mu sync.Mutex

	// CreatingTicks is how many Status() calls report Creating before
	// flipping to Ready (0 means: Ready on the very first poll).
	CreatingTicks int
	// DeletingTicks is the Deleting-side equivalent.
	DeletingTicks int
	// DefaultPorts is returned by Ports() for any address not given an
	// explicit entry via SetPorts.
	DefaultPorts []int

	// CreateCalls/DeleteCalls record arguments for every call made since
	// the fake was constructed, for test assertions.
	CreateCalls []string
	DeleteCalls []string

	// AllowedCreates caps how many Create calls succeed before returning an
	// error, to exercise ProvisionerFailure handling. Zero means unlimited.
	AllowedCreates int

	clusters map[string]*clusterState
	ports    map[string][]int
	seq      int
}

type clusterState struct {
	status   provisioner.Status
	creating int
	deleting int
	// pinned is set by SetStatus: Status() then reports status as-is
	// instead of advancing it.
	pinned bool
}

// New returns a ready-to-use fake provisioner.
func New() *Provisioner {
	return &Provisioner{
		DefaultPorts: []int{80, 8081, 405, 520},
		clusters:     map[string]*clusterState{},
		ports:        map[string][]int{},
	}
}

// SetPorts overrides the port assignment reported for address.
func (p *Provisioner) SetPorts(address string, ports []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ports[address] = ports
}

// SetStatus forces the reported status for address (until a later Delete
// starts teardown of a cluster not already Deleting), letting tests drive a
// cluster straight to a particular point in its lifecycle. It seeds an
// entry for addresses that were never returned by Create, so tests can pin a
// record straight into Ready/Remove/Deleting without replaying every prior
// transition.
func (p *Provisioner) SetStatus(address string, status provisioner.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clusters[address]
	if !ok {
		c = &clusterState{}
		p.clusters[address] = c
	}
	c.status = status
	c.pinned = true
}

func (p *Provisioner) Create(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls = append(p.CreateCalls, name)
	if p.AllowedCreates > 0 && len(p.CreateCalls) > p.AllowedCreates {
		return "", fmt.Errorf("fake provisioner: create quota exceeded for %q", name)
	}
	p.seq++
	address := fmt.Sprintf("fake://%s-%d", name, p.seq)
	p.clusters[address] = &clusterState{status: provisioner.StatusCreating}
	return address, nil
}

func (p *Provisioner) Delete(_ context.Context, address string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DeleteCalls = append(p.DeleteCalls, address)
	c, ok := p.clusters[address]
	if !ok {
		// Idempotent: deleting an unknown address is not an error.
		return nil
	}
	if c.status != provisioner.StatusDeleting {
		c.status = provisioner.StatusDeleting
		c.deleting = 0
		c.pinned = false
	}
	return nil
}

func (p *Provisioner) Status(_ context.Context, address string) (provisioner.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clusters[address]
	if !ok {
		return provisioner.StatusClusterNotFound, nil
	}
	if c.pinned {
		return c.status, nil
	}
	switch c.status {
	case provisioner.StatusCreating:
		if c.creating >= p.CreatingTicks {
			c.status = provisioner.StatusReady
			return provisioner.StatusReady, nil
		}
		c.creating++
		return provisioner.StatusCreating, nil
	case provisioner.StatusDeleting:
		if c.deleting >= p.DeletingTicks {
			delete(p.clusters, address)
			return provisioner.StatusClusterNotFound, nil
		}
		c.deleting++
		return provisioner.StatusDeleting, nil
	default:
		return c.status, nil
	}
}

func (p *Provisioner) Ports(_ context.Context, address string) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ports, ok := p.ports[address]; ok {
		return ports, nil
	}
	return p.DefaultPorts, nil
}

var _ provisioner.Provisioner = (*Provisioner)(nil)
