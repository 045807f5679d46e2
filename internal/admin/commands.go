package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
)

const help = `Available commands:
create-tenant <id> [name] - Create a tenant with a default teacher and tags
list-tenants - List all tenants
help - Show this message

Examples:
create-tenant admin "Admin Tenant - Development"
create-tenant lincoln-high`

// ErrUsage marks a malformed command line.
var ErrUsage = errors.New("usage")

type commandHandler func(ctx context.Context, args []string) error

func (a *Admin) route(cmd string) (commandHandler, bool) {
	commands := map[string]commandHandler{
		"create-tenant": a.handleCreateTenant,
		"list-tenants":  a.handleListTenants,
		"help":          a.handleHelp,
	}
	handler, found := commands[cmd]
	return handler, found
}

// Run dispatches args[0] to its command.
func (a *Admin) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.handleHelp(ctx, nil)
		return fmt.Errorf("%w: no command given", ErrUsage)
	}
	handler, ok := a.route(args[0])
	if !ok {
		a.handleHelp(ctx, nil)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return handler(ctx, args[1:])
}

func (a *Admin) handleHelp(_ context.Context, _ []string) error {
	fmt.Fprintln(a.out, help)
	return nil
}

func (a *Admin) handleCreateTenant(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: create-tenant <id> [name]", ErrUsage)
	}
	id := strings.ToLower(strings.TrimSpace(args[0]))
	if !models.IsTenantID(id) {
		return fmt.Errorf("invalid tenant id %q: use 3-63 lowercase letters, digits or hyphens", id)
	}
	name := id
	if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
		name = strings.TrimSpace(args[1])
	}

	b, err := a.CreateTenant(ctx, id, name)
	if err != nil {
		return err
	}

	if b.TenantCreated {
		fmt.Fprintf(a.out, "Created tenant %s (%s)\n", b.Tenant.ID, b.Tenant.Name)
	} else {
		fmt.Fprintf(a.out, "Tenant %s already exists (%s, created %s)\n",
			b.Tenant.ID, b.Tenant.Name, b.Tenant.CreatedAt.Format("2006-01-02"))
	}
	if b.TeacherCreated {
		fmt.Fprintf(a.out, "Created teacher %s <%s>\n", DefaultTeacherName, DefaultTeacherEmail)
	}
	for _, tag := range b.TagsCreated {
		fmt.Fprintf(a.out, "Created tag %s\n", tag)
	}
	return nil
}

func (a *Admin) handleListTenants(ctx context.Context, _ []string) error {
	tenants, err := a.store.ListTenants(ctx)
	if err != nil {
		return err
	}
	if len(tenants) == 0 {
		fmt.Fprintln(a.out, "No tenants")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Name, t.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
