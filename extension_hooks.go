package membership

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-membership/webhooks"
)

// WebhookHandlerPack groups the webhook handlers a downstream extension
// contributes, keyed by event type.
type WebhookHandlerPack struct {
	Name     string
	Handlers map[string]webhooks.Handler
}

// WebhookRegistry is the registration slice of the gate. *webhooks.Gate
// satisfies it.
type WebhookRegistry interface {
	Register(eventType string, handler webhooks.Handler)
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks lets embedding applications contribute webhook handlers
// and command/query bundles before the facade is wired.
type ExtensionHooks struct {
	mu sync.RWMutex

	webhookPacks map[string]WebhookHandlerPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		webhookPacks: map[string]WebhookHandlerPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterWebhookPack(pack WebhookHandlerPack) error {
	if h == nil {
		return fmt.Errorf("membership: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("membership: webhook pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("membership: webhook pack %q has no handlers", name)
	}

	normalized := WebhookHandlerPack{
		Name:     name,
		Handlers: make(map[string]webhooks.Handler, len(pack.Handlers)),
	}
	for eventType, handler := range pack.Handlers {
		eventType = strings.TrimSpace(eventType)
		if eventType == "" {
			return fmt.Errorf("membership: webhook pack %q contains an empty event type", name)
		}
		if handler == nil {
			return fmt.Errorf("membership: webhook pack %q handler for %q is nil", name, eventType)
		}
		normalized.Handlers[eventType] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.webhookPacks[name]; exists {
		return fmt.Errorf("membership: webhook pack %q already registered", name)
	}
	h.webhookPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("membership: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("membership: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("membership: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("membership: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyWebhookPacks registers every contributed handler on the gate in
// deterministic pack order. Two packs claiming the same event type is a
// wiring mistake and fails fast.
func (h *ExtensionHooks) ApplyWebhookPacks(registry WebhookRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("membership: webhook registry is required")
	}

	claimed := map[string]string{}
	for _, pack := range h.WebhookPacks() {
		eventTypes := make([]string, 0, len(pack.Handlers))
		for eventType := range pack.Handlers {
			eventTypes = append(eventTypes, eventType)
		}
		sort.Strings(eventTypes)
		for _, eventType := range eventTypes {
			if owner, exists := claimed[eventType]; exists {
				return fmt.Errorf(
					"membership: webhook packs %q and %q both handle %q",
					owner, pack.Name, eventType,
				)
			}
			claimed[eventType] = pack.Name
			registry.Register(eventType, pack.Handlers[eventType])
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("membership: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) WebhookPacks() []WebhookHandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.webhookPacks))
	for name := range h.webhookPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]WebhookHandlerPack, 0, len(names))
	for _, name := range names {
		pack := h.webhookPacks[name]
		handlers := make(map[string]webhooks.Handler, len(pack.Handlers))
		for eventType, handler := range pack.Handlers {
			handlers[eventType] = handler
		}
		out = append(out, WebhookHandlerPack{Name: pack.Name, Handlers: handlers})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
