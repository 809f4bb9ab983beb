package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtcompose/internal/actions"
	"github.com/jbweber/virtcompose/internal/config"
	"github.com/jbweber/virtcompose/internal/image"
	"github.com/jbweber/virtcompose/internal/storage"
)

func notFound(code libvirt.ErrorNumber, what string) error {
	return libvirt.Error{Code: uint32(code), Message: what + " not found"}
}

// mockDomain is the libvirt-side state of one defined domain.
type mockDomain struct {
	dom      libvirt.Domain
	xml      string
	state    libvirt.DomainState
	metadata string
}

// mockLibvirtClient is a stateful mock of the LibvirtClient interface.
// Domains and networks behave like libvirt's unless an xxxFunc override
// is set.
type mockLibvirtClient struct {
	mu sync.Mutex

	domains  map[string]*mockDomain
	networks map[string]bool // name -> active
	leases   map[string][]libvirt.NetworkDhcpLease

	// Configurable behavior
	domainDefineXMLFunc     func(xml string) (libvirt.Domain, error)
	domainCreateFunc        func(dom libvirt.Domain) error
	domainShutdownFlagsFunc func(dom libvirt.Domain) error
	domainSendKeyFunc       func(dom libvirt.Domain, codes []uint32) error

	// Call tracking
	domainDefineXMLCalls     []string
	domainCreateCalls        []string
	domainShutdownCalls      []string
	domainDestroyCalls       []string
	domainUndefineFlagsCalls []libvirt.DomainUndefineFlagsValues
	domainSendKeyCalls       [][]uint32
	domainSetMetadataCalls   int
	networkDefineXMLCalls    []string
	networkCreateCalls       []string
	networkAutostartCalls    []string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		domains:  make(map[string]*mockDomain),
		networks: make(map[string]bool),
		leases:   make(map[string][]libvirt.NetworkDhcpLease),
	}
}

// addDomain registers a pre-existing domain.
func (m *mockLibvirtClient) addDomain(name string, state libvirt.DomainState) *mockDomain {
	d := &mockDomain{
		dom:   libvirt.Domain{Name: name},
		state: state,
		xml: fmt.Sprintf(`<domain type="kvm"><name>%s</name><devices>`+
			`<interface type="network"><mac address="52:54:00:00:00:01"/><source network="default"/></interface>`+
			`</devices></domain>`, name),
	}
	m.domains[name] = d
	return d
}

func (m *mockLibvirtClient) domain(dom libvirt.Domain) (*mockDomain, error) {
	d, ok := m.domains[dom.Name]
	if !ok {
		return nil, notFound(libvirt.ErrNoDomain, "domain "+dom.Name)
	}
	return d, nil
}

func (m *mockLibvirtClient) state(name string) (libvirt.DomainState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[name]
	if !ok {
		return 0, false
	}
	return d.state, true
}

func (m *mockLibvirtClient) setState(name string, state libvirt.DomainState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name].state = state
}

func (m *mockLibvirtClient) ConnectListAllDomains(_ int32, _ libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var doms []libvirt.Domain
	for _, d := range m.domains {
		doms = append(doms, d.dom)
	}
	return doms, uint32(len(doms)), nil
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[name]
	if !ok {
		return libvirt.Domain{}, notFound(libvirt.ErrNoDomain, "domain "+name)
	}
	return d.dom, nil
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	if m.domainDefineXMLFunc != nil {
		return m.domainDefineXMLFunc(xml)
	}

	var def libvirtxml.Domain
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, err
	}
	d := &mockDomain{dom: libvirt.Domain{Name: def.Name}, xml: xml, state: libvirt.DomainShutoff}
	m.domains[def.Name] = d
	return d.dom, nil
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom.Name)
	if m.domainCreateFunc != nil {
		return m.domainCreateFunc(dom)
	}
	d, err := m.domain(dom)
	if err != nil {
		return err
	}
	d.state = libvirt.DomainRunning
	return nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, _ uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.domain(dom)
	if err != nil {
		return 0, 0, err
	}
	return int32(d.state), 0, nil
}

// DomainShutdownFlags powers the guest off immediately unless overridden.
func (m *mockLibvirtClient) DomainShutdownFlags(dom libvirt.Domain, _ libvirt.DomainShutdownFlagValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom.Name)
	if m.domainShutdownFlagsFunc != nil {
		return m.domainShutdownFlagsFunc(dom)
	}
	d, err := m.domain(dom)
	if err != nil {
		return err
	}
	d.state = libvirt.DomainShutoff
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom.Name)
	d, err := m.domain(dom)
	if err != nil {
		return err
	}
	d.state = libvirt.DomainShutoff
	return nil
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, flags)
	if _, err := m.domain(dom); err != nil {
		return err
	}
	delete(m.domains, dom.Name)
	return nil
}

func (m *mockLibvirtClient) DomainGetXMLDesc(dom libvirt.Domain, _ libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.domain(dom)
	if err != nil {
		return "", err
	}
	return d.xml, nil
}

func (m *mockLibvirtClient) DomainSendKey(dom libvirt.Domain, _ uint32, _ uint32, codes []uint32, _ uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainSendKeyCalls = append(m.domainSendKeyCalls, codes)
	if m.domainSendKeyFunc != nil {
		return m.domainSendKeyFunc(dom, codes)
	}
	return nil
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, _ int32, metadata libvirt.OptString, _ libvirt.OptString, _ libvirt.OptString, _ libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainSetMetadataCalls++
	d, err := m.domain(dom)
	if err != nil {
		return err
	}
	if len(metadata) > 0 {
		d.metadata = metadata[0]
	}
	return nil
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, _ int32, _ libvirt.OptString, _ libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.domain(dom)
	if err != nil {
		return "", err
	}
	if d.metadata == "" {
		return "", fmt.Errorf("metadata not found")
	}
	return d.metadata, nil
}

func (m *mockLibvirtClient) NetworkLookupByName(name string) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.networks[name]; !ok {
		return libvirt.Network{}, notFound(libvirt.ErrNoNetwork, "network "+name)
	}
	return libvirt.Network{Name: name}, nil
}

func (m *mockLibvirtClient) NetworkDefineXML(xml string) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkDefineXMLCalls = append(m.networkDefineXMLCalls, xml)
	var def libvirtxml.Network
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.Network{}, err
	}
	m.networks[def.Name] = false
	return libvirt.Network{Name: def.Name}, nil
}

func (m *mockLibvirtClient) NetworkCreate(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkCreateCalls = append(m.networkCreateCalls, net.Name)
	m.networks[net.Name] = true
	return nil
}

func (m *mockLibvirtClient) NetworkIsActive(net libvirt.Network) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.networks[net.Name] {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLibvirtClient) NetworkSetAutostart(net libvirt.Network, _ int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkAutostartCalls = append(m.networkAutostartCalls, net.Name)
	return nil
}

func (m *mockLibvirtClient) NetworkGetDhcpLeases(net libvirt.Network, mac libvirt.OptString, _ int32, _ uint32) ([]libvirt.NetworkDhcpLease, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []libvirt.NetworkDhcpLease
	for _, l := range m.leases[net.Name] {
		if len(mac) == 0 || (len(l.Mac) > 0 && l.Mac[0] == mac[0]) {
			out = append(out, l)
		}
	}
	return out, uint32(len(out)), nil
}

// mockStorageManager tracks volumes by name.
type mockStorageManager struct {
	mu      sync.Mutex
	volumes map[string]storage.VolumeFormat
	sizes   map[string]uint64

	importErr error
	deleteErr error

	ensurePoolCalls  []string
	importCalls      []string
	blankCalls       []string
	deleteCalls      []string
	volumeCreateSeen int
}

func newMockStorageManager() *mockStorageManager {
	return &mockStorageManager{
		volumes: make(map[string]storage.VolumeFormat),
		sizes:   make(map[string]uint64),
	}
}

func (m *mockStorageManager) EnsurePool(_ context.Context, name, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensurePoolCalls = append(m.ensurePoolCalls, name)
	return nil
}

func (m *mockStorageManager) VolumeExists(_ context.Context, _, volumeName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.volumes[volumeName]
	return ok, nil
}

func (m *mockStorageManager) ImportImage(_ context.Context, _, volumeName, filePath string) (*storage.ImageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importCalls = append(m.importCalls, volumeName)
	if m.importErr != nil {
		return nil, m.importErr
	}
	m.volumes[volumeName] = storage.VolumeFormatQCOW2
	m.volumeCreateSeen++
	return &storage.ImageInfo{Path: filePath, Format: storage.VolumeFormatQCOW2, VirtualSize: 10 << 30}, nil
}

func (m *mockStorageManager) CreateBlankVolume(_ context.Context, _, volumeName string, capacity uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blankCalls = append(m.blankCalls, volumeName)
	m.volumes[volumeName] = storage.VolumeFormatRaw
	m.sizes[volumeName] = capacity
	m.volumeCreateSeen++
	return nil
}

func (m *mockStorageManager) DeleteVolume(_ context.Context, _, volumeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, volumeName)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.volumes, volumeName)
	return nil
}

func (m *mockStorageManager) exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.volumes[name]
	return ok
}

// mockImageBuilder returns each image's output without running packer.
type mockImageBuilder struct {
	built      bool
	err        error
	buildCalls []string
	forced     []bool
}

func (m *mockImageBuilder) Build(_ context.Context, name string, img *config.ImageSpec, opts image.Options) (*image.Result, error) {
	m.buildCalls = append(m.buildCalls, name)
	m.forced = append(m.forced, opts.Force)
	if m.err != nil {
		return nil, m.err
	}
	return &image.Result{Output: img.Output, Built: m.built || opts.Force}, nil
}

// mockExecutor records runs; executeFunc overrides Execute.
type mockExecutor struct {
	checkErr    error
	executeFunc func(ctx context.Context, target actions.Target, list config.Actions) error

	checkCalls   int
	executeCalls []config.Actions
}

func (m *mockExecutor) Check(config.Actions, map[string]string) error {
	m.checkCalls++
	return m.checkErr
}

func (m *mockExecutor) Execute(ctx context.Context, target actions.Target, list config.Actions, _ map[string]string) error {
	m.executeCalls = append(m.executeCalls, list)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, target, list)
	}
	return nil
}
