// Package coreactions registers the dashboard's built-in action set.
// Handlers delegate to external domain collaborators (server inventory,
// service manager, DNS filter, monitoring) and are treated as opaque
// I/O by the orchestration engine.
package coreactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/wicaksono/opsagent/pkg/action"
	"github.com/wicaksono/opsagent/pkg/tool"
)

// ServerInventory manages the tracked server fleet
type ServerInventory interface {
	List(ctx context.Context) (interface{}, error)
	Status(ctx context.Context, serverID string) (interface{}, error)
	Reboot(ctx context.Context, serverID string) (interface{}, error)
}

// ServiceManager controls system services on managed hosts
type ServiceManager interface {
	Restart(ctx context.Context, service string) (interface{}, error)
	Stop(ctx context.Context, service string) (interface{}, error)
}

// DNSFilter manages the DNS filtering service
type DNSFilter interface {
	BlockDomain(ctx context.Context, domain string) (interface{}, error)
	UnblockDomain(ctx context.Context, domain string) (interface{}, error)
	ListBlocked(ctx context.Context) (interface{}, error)
}

// Monitor exposes the monitoring subsystem
type Monitor interface {
	ActiveAlerts(ctx context.Context) (interface{}, error)
	Acknowledge(ctx context.Context, alertID string) (interface{}, error)
}

// ProjectStore exposes the work-notes project list
type ProjectStore interface {
	List(ctx context.Context) (interface{}, error)
	Search(ctx context.Context, query string) (interface{}, error)
}

// Collaborators bundles the external systems the built-in actions call
type Collaborators struct {
	Servers  ServerInventory
	Services ServiceManager
	DNS      DNSFilter
	Monitor  Monitor
	Projects ProjectStore
}

// Register registers the built-in action set on the given registry
func Register(reg *action.Registry, collab Collaborators) error {
	definitions := []action.Definition{
		listServersAction(collab),
		serverStatusAction(collab),
		rebootServerAction(collab),
		restartServiceAction(collab),
		stopServiceAction(collab),
		blockDomainAction(collab),
		unblockDomainAction(collab),
		listBlockedDomainsAction(collab),
		activeAlertsAction(collab),
		acknowledgeAlertAction(collab),
		listProjectsAction(collab),
		searchNotesAction(collab),
	}

	for _, def := range definitions {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("failed to register action %s: %w", def.Name, err)
		}
	}
	return nil
}

var errNotConfigured = errors.New("collaborator not configured")

func listServersAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "list_servers",
			Description: "List all tracked servers with their basic status.",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Servers == nil {
					return nil, errNotConfigured
				}
				return collab.Servers.List(ctx)
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategoryServer,
	}
}

func serverStatusAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "server_status",
			Description: "Get detailed status for one server.",
			Parameters: []tool.Parameter{
				{Name: "server_id", Type: "string", Description: "Server identifier", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Servers == nil {
					return nil, errNotConfigured
				}
				serverID, _ := args["server_id"].(string)
				return collab.Servers.Status(ctx, serverID)
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategoryServer,
	}
}

func rebootServerAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "reboot_server",
			Description: "Reboot a server. Requires confirmation.",
			Parameters: []tool.Parameter{
				{Name: "server_id", Type: "string", Description: "Server identifier", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Servers == nil {
					return nil, errNotConfigured
				}
				serverID, _ := args["server_id"].(string)
				return collab.Servers.Reboot(ctx, serverID)
			},
		},
		Risk:     action.RiskDestructive,
		Category: action.CategoryServer,
	}
}

func restartServiceAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "restart_service",
			Description: "Restart a system service. Requires confirmation.",
			Parameters: []tool.Parameter{
				{Name: "service", Type: "string", Description: "Service name", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Services == nil {
					return nil, errNotConfigured
				}
				service, _ := args["service"].(string)
				return collab.Services.Restart(ctx, service)
			},
		},
		Risk:     action.RiskDestructive,
		Category: action.CategoryService,
	}
}

func stopServiceAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "stop_service",
			Description: "Stop a system service. Requires confirmation.",
			Parameters: []tool.Parameter{
				{Name: "service", Type: "string", Description: "Service name", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Services == nil {
					return nil, errNotConfigured
				}
				service, _ := args["service"].(string)
				return collab.Services.Stop(ctx, service)
			},
		},
		Risk:     action.RiskDestructive,
		Category: action.CategoryService,
	}
}

func blockDomainAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "block_domain",
			Description: "Add a domain to the DNS filter blocklist. Requires confirmation.",
			Parameters: []tool.Parameter{
				{Name: "domain", Type: "string", Description: "Domain to block", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.DNS == nil {
					return nil, errNotConfigured
				}
				domain, _ := args["domain"].(string)
				return collab.DNS.BlockDomain(ctx, domain)
			},
		},
		Risk:     action.RiskWrite,
		Category: action.CategoryFirewall,
	}
}

func unblockDomainAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "unblock_domain",
			Description: "Remove a domain from the DNS filter blocklist. Requires confirmation.",
			Parameters: []tool.Parameter{
				{Name: "domain", Type: "string", Description: "Domain to unblock", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.DNS == nil {
					return nil, errNotConfigured
				}
				domain, _ := args["domain"].(string)
				return collab.DNS.UnblockDomain(ctx, domain)
			},
		},
		Risk:     action.RiskWrite,
		Category: action.CategoryFirewall,
	}
}

func listBlockedDomainsAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "list_blocked_domains",
			Description: "List domains currently on the DNS filter blocklist.",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.DNS == nil {
					return nil, errNotConfigured
				}
				return collab.DNS.ListBlocked(ctx)
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategoryNetwork,
	}
}

func activeAlertsAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "active_alerts",
			Description: "List currently firing monitoring alerts.",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Monitor == nil {
					return nil, errNotConfigured
				}
				return collab.Monitor.ActiveAlerts(ctx)
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategoryMonitoring,
	}
}

func acknowledgeAlertAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "acknowledge_alert",
			Description: "Acknowledge a monitoring alert. Requires confirmation.",
			Parameters: []tool.Parameter{
				{Name: "alert_id", Type: "string", Description: "Alert identifier", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Monitor == nil {
					return nil, errNotConfigured
				}
				alertID, _ := args["alert_id"].(string)
				return collab.Monitor.Acknowledge(ctx, alertID)
			},
		},
		Risk:     action.RiskWrite,
		Category: action.CategoryMonitoring,
	}
}

func listProjectsAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "list_projects",
			Description: "List all projects in the work notes.",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Projects == nil {
					return nil, errNotConfigured
				}
				return collab.Projects.List(ctx)
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategoryProject,
	}
}

func searchNotesAction(collab Collaborators) action.Definition {
	return action.Definition{
		Definition: tool.Definition{
			Name:        "search_notes",
			Description: "Full-text search across journal and work notes.",
			Parameters: []tool.Parameter{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if collab.Projects == nil {
					return nil, errNotConfigured
				}
				query, _ := args["query"].(string)
				return collab.Projects.Search(ctx, query)
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategorySearch,
	}
}
