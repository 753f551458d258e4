package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/spf13/cobra"
)

func newLocationsCmd(a *app) *cobra.Command {
	lib := library[domain.Location, *domain.Location]{
		kind:   domain.KindLocation,
		open:   a.locations,
		header: "ID\tNAME\tVERIFIED\tUSAGE\tLAT\tLON\tADDRESS",
		row: func(l domain.Location) string {
			return fmt.Sprintf("%s\t%s\t%s\t%d\t%s\t%s\t%s", l.ID, l.Name, mark(l.Verified), l.UsageCount,
				coord(l.HasCoordinates(), l.Lat), coord(l.HasCoordinates(), l.Lon), l.Address)
		},
	}
	cmd := &cobra.Command{
		Use:     "locations",
		Aliases: []string{"location", "loc"},
		Short:   "Manage the location library",
	}
	cmd.AddCommand(lib.common()...)
	cmd.AddCommand(newLocationAddCmd(a), newLocationEditCmd(a), newLocationGeocodeCmd(a))
	return cmd
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return ""
}

func coord(ok bool, v float64) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func newLocationAddCmd(a *app) *cobra.Command {
	var f entityFlags
	var lat, lon float64
	var region string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a location",
		Long: `Adds a location to the library. Without --lat and --lon the position is
looked up by name within --region (default: app.region from the settings
file) when MAPBOX_TOKEN is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.locations()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lon") {
				return errors.New("--lat and --lon must be given together")
			}
			loc := domain.Location{Entity: f.entity(strings.Join(args, " ")), Lat: lat, Lon: lon}

			if !loc.HasCoordinates() {
				if !cmd.Flags().Changed("region") {
					region = a.cfg.Settings.App.Region
				}
				src := domain.ResolveCoordinates(cmd.Context(), &loc, region, a.geocoder(), a.logger)
				a.logger.Debug("coordinates resolved", "name", loc.Name, "source", src)
			}

			added, err := store.Add(loc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ Added %s (%s)\n", added.ID, added.Name)
			if !added.HasCoordinates() {
				fmt.Fprintln(out, "⚠️  No coordinates; events at this venue will not show on the map")
			}
			return nil
		},
	}
	f.register(cmd, false)
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&region, "region", "", "region appended to the name when geocoding")
	return cmd
}

func newLocationEditCmd(a *app) *cobra.Command {
	var f entityFlags
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.locations()
			if err != nil {
				return err
			}
			p := f.patch(cmd)
			if cmd.Flags().Changed("lat") {
				p.Lat = &lat
			}
			if cmd.Flags().Changed("lon") {
				p.Lon = &lon
			}
			if p.Empty() {
				return errEmptyPatch
			}
			loc, err := store.Update(args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated %s (%s)\n", loc.ID, loc.Name)
			return nil
		},
	}
	f.register(cmd, true)
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	return cmd
}

func newLocationGeocodeCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Fill missing coordinates and addresses from Mapbox",
		Long: `Forward-geocodes locations without coordinates and reverse-geocodes
locations without an address. Requires MAPBOX_TOKEN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			geocoder := a.geocoder()
			if geocoder == nil {
				return errors.New("geocoding is disabled: set MAPBOX_TOKEN")
			}
			store, err := a.locations()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			counts := map[domain.GeoSource]int{}
			for _, loc := range store.List() {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				orig := loc
				srcPos := domain.ResolveCoordinates(cmd.Context(), &loc, a.cfg.Settings.App.Region, geocoder, a.logger)
				srcAddr := domain.ResolveAddress(cmd.Context(), &loc, geocoder, a.logger)
				counts[srcPos]++
				counts[srcAddr]++

				var p domain.EntityPatch
				if loc.Lat != orig.Lat || loc.Lon != orig.Lon {
					p.Lat, p.Lon = &loc.Lat, &loc.Lon
				}
				if loc.Address != orig.Address {
					p.Address = &loc.Address
				}
				if p.Empty() {
					continue
				}
				fmt.Fprintf(out, "📍 %s: %s %s\n", loc.ID, coord(true, loc.Lat)+","+coord(true, loc.Lon), loc.Address)
				if dryRun {
					continue
				}
				if _, err := store.Update(loc.ID, p); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "✅ %d positions and %d addresses found, %d lookups failed\n",
				counts[domain.GeoForward], counts[domain.GeoReverse], counts[domain.GeoFailed])
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print results without saving")
	return cmd
}
