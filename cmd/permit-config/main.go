package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/squealx"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		handleValidate()
	case "convert":
		handleConvert()
	case "stats":
		handleStats()
	case "seed":
		handleSeed()
	case "matrix":
		handleMatrix()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permit-config - Configuration tool for permit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permit-config validate <file>          - Validate a configuration file")
	fmt.Println("  permit-config convert <input> <output> - Convert between YAML and JSON")
	fmt.Println("  permit-config stats <file>             - Show configuration statistics")
	fmt.Println("  permit-config seed <file> <sqlite-db>  - Seed memberships into a SQLite database")
	fmt.Println("  permit-config matrix [role]            - Print the role permission matrix")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func loadConfig(path string) (*permit.Config, error) {
	return permit.NewConfigLoader().LoadFile(path)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config validate <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d memberships, %d org memberships, %d project links\n",
		len(cfg.Memberships), len(cfg.OrgMemberships), len(cfg.ProjectOrgs))
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit-config convert <input> <output>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(os.Args[3])) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		fmt.Printf("Unsupported output format: %s\n", filepath.Ext(os.Args[3]))
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error encoding config: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(os.Args[3], data, 0o644); err != nil {
		fmt.Printf("Error writing output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", os.Args[2], os.Args[3])
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config stats <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	byRole := map[string]int{}
	scoped, expiring := 0, 0
	for _, m := range cfg.Memberships {
		byRole[m.Role]++
		if m.Scope != nil {
			scoped++
		}
		if m.ExpiresAt != "" {
			expiring++
		}
	}
	fmt.Printf("Memberships: %d (%d scoped, %d expiring)\n", len(cfg.Memberships), scoped, expiring)
	for role, n := range byRole {
		fmt.Printf("  %-20s %d\n", role, n)
	}
	fmt.Printf("Org memberships: %d\n", len(cfg.OrgMemberships))
	fmt.Printf("Project links:   %d\n", len(cfg.ProjectOrgs))
}

func handleSeed() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit-config seed <file> <sqlite-db>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	sqlDB, err := sql.Open("sqlite", os.Args[3])
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()
	db := squealx.NewDb(sqlDB, "sqlite", "permitdb")
	if err := stores.Migrate(db); err != nil {
		fmt.Printf("Error migrating: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	members := stores.NewSQLMembershipStore(db)
	orgs := stores.NewSQLOrganizationStore(db)
	if err := permit.ApplyConfig(ctx, cfg, members, orgs); err != nil {
		fmt.Printf("Error seeding: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d memberships into %s\n", len(cfg.Memberships), os.Args[3])
}

func handleMatrix() {
	roles := []permit.ProjectRole{
		permit.RoleProjectAdmin,
		permit.RoleProjectManager,
		permit.RoleProjectEngineer,
		permit.RoleSuperintendent,
		permit.RoleForeman,
		permit.RoleArchitectEngineer,
		permit.RoleSubcontractor,
		permit.RoleOwnerRep,
		permit.RoleInspector,
		permit.RoleViewer,
	}
	if len(os.Args) >= 3 {
		roles = []permit.ProjectRole{permit.ProjectRole(os.Args[2])}
	}
	for _, role := range roles {
		if !permit.ValidRole(role) {
			fmt.Printf("Unknown role: %s\n", role)
			os.Exit(1)
		}
		perms := permit.RolePermissions(role)
		fmt.Printf("%s (%d permissions", role, len(perms))
		if permit.IsScopeLimited(role) {
			fmt.Print(", scope-limited")
		}
		fmt.Println(")")
		for _, p := range permit.MinimizePermissions(perms) {
			fmt.Printf("  %s\n", p)
		}
	}
}
