package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/spf13/cobra"
)

// library describes one entity library to the shared subcommands.
type library[T any, P entity.Record[T]] struct {
	kind   domain.Kind
	open   func() (*entity.Store[T, P], error)
	header string
	row    func(T) string // tab separated, matching header
}

// common returns the subcommands locations and organizers share.
func (l library[T, P]) common() []*cobra.Command {
	return []*cobra.Command{l.listCmd(), l.verifyCmd(), l.searchCmd(), l.mergeCmd(), l.statsCmd(), l.deleteCmd()}
}

func (l library[T, P]) printRows(out io.Writer, recs []T) error {
	t := newTable(out)
	fmt.Fprintln(t, l.header)
	for _, r := range recs {
		fmt.Fprintln(t, l.row(r))
	}
	return t.Flush()
}

func (l library[T, P]) listCmd() *cobra.Command {
	var verified, unverified bool
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss", l.kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, "table", "json"); err != nil {
				return err
			}
			store, err := l.open()
			if err != nil {
				return err
			}
			recs := slices.DeleteFunc(store.List(), func(r T) bool {
				v := P(&r).Base().Verified
				return (verified && !v) || (unverified && v)
			})
			out := cmd.OutOrStdout()
			if format == "json" {
				return printJSON(out, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintf(out, "No %ss found\n", l.kind)
				return nil
			}
			if err := l.printRows(out, recs); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d %ss\n", len(recs), l.kind)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verified, "verified", false, "only verified records")
	cmd.Flags().BoolVar(&unverified, "unverified", false, "only unverified records")
	cmd.MarkFlagsMutuallyExclusive("verified", "unverified")
	addFormatFlag(cmd, &format, "table", "json")
	return cmd
}

func (l library[T, P]) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify ID",
		Short: fmt.Sprintf("Mark a %s as verified", l.kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := l.open()
			if err != nil {
				return err
			}
			rec, err := store.Verify(args[0])
			if err != nil {
				return err
			}
			b := P(&rec).Base()
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Verified %s (%s)\n", b.ID, b.Name)
			return nil
		},
	}
}

func (l library[T, P]) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: fmt.Sprintf("Search %ss by name or alias", l.kind),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := l.open()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			recs := store.Search(query)
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintf(out, "No %ss match %q\n", l.kind, query)
				return nil
			}
			return l.printRows(out, recs)
		},
	}
}

func (l library[T, P]) mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge SOURCE_ID TARGET_ID",
		Short: fmt.Sprintf("Fold one %s into another", l.kind),
		Long: `Merges SOURCE into TARGET: the source name and aliases become aliases of
the target, empty target fields are filled, usage counts are summed and the
source record is removed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := l.open()
			if err != nil {
				return err
			}
			rec, err := store.Merge(args[0], args[1])
			if err != nil {
				return err
			}
			b := P(&rec).Base()
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Merged %s into %s (%s), usage %d, aliases %s\n",
				args[0], b.ID, b.Name, b.UsageCount, strings.Join(b.Aliases, ", "))
			return nil
		},
	}
}

func (l library[T, P]) statsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: fmt.Sprintf("Summarize the %s library", l.kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			store, err := l.open()
			if err != nil {
				return err
			}
			st := store.Statistics()
			out := cmd.OutOrStdout()
			if format == "json" {
				return printJSON(out, st)
			}
			fmt.Fprintf(out, "📊 %d %ss: %d verified, %d unverified\n", st.Total, l.kind, st.Verified, st.Unverified)
			fields := make([]string, 0, len(st.FieldCounts))
			for f := range st.FieldCounts {
				fields = append(fields, f)
			}
			slices.Sort(fields)
			for _, f := range fields {
				fmt.Fprintf(out, "    with %s: %d\n", f, st.FieldCounts[f])
			}
			if len(st.TopUsed) > 0 {
				fmt.Fprintln(out, "Most used:")
				for _, u := range st.TopUsed {
					fmt.Fprintf(out, "    %4d  %s (%s)\n", u.UsageCount, u.Name, u.ID)
				}
			}
			return nil
		},
	}
	addFormatFlag(cmd, &format, "text", "json")
	return cmd
}

func (l library[T, P]) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: fmt.Sprintf("Remove a %s from the library", l.kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := l.open()
			if err != nil {
				return err
			}
			ok, err := store.Delete(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s %s: %w", l.kind, args[0], domain.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Deleted %s\n", args[0])
			return nil
		},
	}
}

// entityFlags are the editable fields both kinds share.
type entityFlags struct {
	name        string
	address     string
	phone       string
	website     string
	description string
	aliases     []string
	verified    bool
}

func (f *entityFlags) register(cmd *cobra.Command, withName bool) {
	if withName {
		cmd.Flags().StringVar(&f.name, "name", "", "new name")
	}
	cmd.Flags().StringVar(&f.address, "address", "", "street address")
	cmd.Flags().StringVar(&f.phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&f.website, "website", "", "website URL")
	cmd.Flags().StringVar(&f.description, "description", "", "free text description")
	cmd.Flags().StringSliceVar(&f.aliases, "alias", nil, "alternative name (repeatable)")
	cmd.Flags().BoolVar(&f.verified, "verified", false, "mark as verified")
}

func (f *entityFlags) entity(name string) domain.Entity {
	return domain.Entity{
		Name:        name,
		Address:     f.address,
		Phone:       f.phone,
		Website:     f.website,
		Description: f.description,
		Aliases:     slices.Clone(f.aliases),
		Verified:    f.verified,
	}
}

// patch sets only the fields whose flags were given.
func (f *entityFlags) patch(cmd *cobra.Command) domain.EntityPatch {
	var p domain.EntityPatch
	changed := cmd.Flags().Changed
	if changed("name") {
		p.Name = &f.name
	}
	if changed("address") {
		p.Address = &f.address
	}
	if changed("phone") {
		p.Phone = &f.phone
	}
	if changed("website") {
		p.Website = &f.website
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("verified") {
		p.Verified = &f.verified
	}
	p.AddAliases = f.aliases
	return p
}

var errEmptyPatch = fmt.Errorf("%w: nothing to change, pass at least one field flag", domain.ErrInvalidEntity)
