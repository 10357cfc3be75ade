package client

import (
	"context"
	"sort"

	"github.com/satishbabariya/duckql/config"
	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/session"
)

// ViewPlan is the view statement for one table mapping.
type ViewPlan struct {
	Name   string
	Source string
	Reader string
	Query  *compiler.Query
}

// PlanViews compiles one CREATE OR REPLACE VIEW per mapping, in name order,
// with the client's compiler.
func (c *Client) PlanViews(mappings map[string]config.TableMapping) ([]ViewPlan, error) {
	return PlanViews(c.compiler, mappings)
}

// PlanViews compiles one CREATE OR REPLACE VIEW per mapping, in name order.
func PlanViews(comp *compiler.Compiler, mappings map[string]config.TableMapping) ([]ViewPlan, error) {
	names := make([]string, 0, len(mappings))
	for name := range mappings {
		names = append(names, name)
	}
	sort.Strings(names)

	plans := make([]ViewPlan, 0, len(names))
	for _, name := range names {
		m := mappings[name]
		keys, vals, err := m.SourceOptions()
		if err != nil {
			return nil, err
		}
		opts := make([]ast.SourceOption, len(keys))
		for i := range keys {
			opts[i] = ast.SourceOption{Name: keys[i], Value: vals[i]}
		}
		reader, err := comp.ReaderFor(m.Source)
		if err != nil {
			return nil, err
		}
		q, err := comp.Compile(&ast.CreateView{
			Name:      ast.T(name),
			OrReplace: true,
			Query:     &ast.Select{From: &ast.External{Source: m.Source, Options: opts}},
		})
		if err != nil {
			return nil, err
		}
		plans = append(plans, ViewPlan{Name: name, Source: m.Source, Reader: reader, Query: q})
	}
	return plans, nil
}

// ApplyTableMappings creates or replaces one view per mapping on conn. With
// nil mappings the client's configuration is used.
func (c *Client) ApplyTableMappings(ctx context.Context, conn *session.Conn, mappings map[string]config.TableMapping) ([]ViewPlan, error) {
	if mappings == nil && c.cfg != nil {
		mappings = c.cfg.TableMappings
	}
	plans, err := c.PlanViews(mappings)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if _, err := conn.Exec(ctx, p.Query); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// DropViews drops the named views if they exist.
func (c *Client) DropViews(ctx context.Context, conn *session.Conn, names ...string) error {
	for _, name := range names {
		q, err := c.compiler.Compile(&ast.DropView{Name: ast.T(name), IfExists: true})
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
