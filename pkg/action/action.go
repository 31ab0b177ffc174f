package action

import (
	"strings"

	"github.com/wicaksono/opsagent/pkg/tool"
)

// RiskClass classifies how dangerous an action is. Read actions execute
// immediately; Write and Destructive actions require confirmation.
type RiskClass string

const (
	RiskRead        RiskClass = "read"
	RiskWrite       RiskClass = "write"
	RiskDestructive RiskClass = "destructive"
)

// AllRiskClasses returns all valid risk classes
func AllRiskClasses() []RiskClass {
	return []RiskClass{RiskRead, RiskWrite, RiskDestructive}
}

// IsValidRiskClass checks if a risk class is valid
func IsValidRiskClass(risk string) bool {
	rc := RiskClass(strings.ToLower(risk))
	for _, valid := range AllRiskClasses() {
		if rc == valid {
			return true
		}
	}
	return false
}

// Category tags an action with the infrastructure domain it touches
type Category string

const (
	CategoryServer     Category = "server"
	CategoryNetwork    Category = "network"
	CategoryFirewall   Category = "firewall"
	CategoryService    Category = "service"
	CategoryMonitoring Category = "monitoring"
	CategoryProject    Category = "project"
	CategorySearch     Category = "search"
	CategorySystem     Category = "system"
)

// AllCategories returns all valid action categories
func AllCategories() []Category {
	return []Category{
		CategoryServer,
		CategoryNetwork,
		CategoryFirewall,
		CategoryService,
		CategoryMonitoring,
		CategoryProject,
		CategorySearch,
		CategorySystem,
	}
}

// IsValidCategory checks if a category is valid
func IsValidCategory(category string) bool {
	cat := Category(strings.ToLower(category))
	for _, valid := range AllCategories() {
		if cat == valid {
			return true
		}
	}
	return false
}

// Definition extends a tool definition with risk metadata. The risk
// class is a registry-side concern, invisible to the LLM's
// function-calling surface.
type Definition struct {
	tool.Definition
	Risk     RiskClass
	Category Category
}
