package main

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/spf13/cobra"
)

func newOrganizersCmd(a *app) *cobra.Command {
	lib := library[domain.Organizer, *domain.Organizer]{
		kind:   domain.KindOrganizer,
		open:   a.organizers,
		header: "ID\tNAME\tVERIFIED\tUSAGE\tEMAIL\tWEBSITE",
		row: func(o domain.Organizer) string {
			return fmt.Sprintf("%s\t%s\t%s\t%d\t%s\t%s", o.ID, o.Name, mark(o.Verified), o.UsageCount, o.Email, o.Website)
		},
	}
	cmd := &cobra.Command{
		Use:     "organizers",
		Aliases: []string{"organizer", "org"},
		Short:   "Manage the organizer library",
	}
	cmd.AddCommand(lib.common()...)
	cmd.AddCommand(newOrganizerAddCmd(a), newOrganizerEditCmd(a))
	return cmd
}

func newOrganizerAddCmd(a *app) *cobra.Command {
	var f entityFlags
	var email string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add an organizer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.organizers()
			if err != nil {
				return err
			}
			added, err := store.Add(domain.Organizer{Entity: f.entity(strings.Join(args, " ")), Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Added %s (%s)\n", added.ID, added.Name)
			return nil
		},
	}
	f.register(cmd, false)
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	return cmd
}

func newOrganizerEditCmd(a *app) *cobra.Command {
	var f entityFlags
	var email string
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of an organizer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.organizers()
			if err != nil {
				return err
			}
			p := f.patch(cmd)
			if cmd.Flags().Changed("email") {
				p.Email = &email
			}
			if p.Empty() {
				return errEmptyPatch
			}
			org, err := store.Update(args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated %s (%s)\n", org.ID, org.Name)
			return nil
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	return cmd
}
