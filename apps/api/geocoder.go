package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const geocodeTimeout = 15 * time.Second

// Place is the administrative area found for a coordinate.
type Place struct {
	Municipality string
	Province     string
	DisplayName  string
}

// Geocoder resolves coordinates to the municipality they fall in. A nil Place
// with a nil error means nothing was found.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*Place, error)
}

// MapboxGeocoder uses the Mapbox v6 reverse endpoint restricted to places.
type MapboxGeocoder struct {
	AccessToken string
	Client      *http.Client
	BaseURL     string
}

func (g *MapboxGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*Place, error) {
	if g.AccessToken == "" {
		return nil, errors.New("mapbox access token missing")
	}
	base := g.BaseURL
	if base == "" {
		base = "https://api.mapbox.com"
	}
	query := url.Values{}
	query.Set("longitude", fmt.Sprintf("%f", lng))
	query.Set("latitude", fmt.Sprintf("%f", lat))
	query.Set("access_token", g.AccessToken)
	query.Set("types", "place")
	query.Set("limit", "1")

	var data struct {
		Features []struct {
			Properties struct {
				Name        string `json:"name"`
				FullAddress string `json:"full_address"`
				Context     struct {
					Region struct {
						Name string `json:"name"`
					} `json:"region"`
				} `json:"context"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := getJSON(ctx, g.Client, base+"/search/geocode/v6/reverse?"+query.Encode(), nil, &data); err != nil {
		return nil, fmt.Errorf("mapbox: %w", err)
	}
	if len(data.Features) == 0 || data.Features[0].Properties.Name == "" {
		return nil, nil
	}
	props := data.Features[0].Properties
	return &Place{
		Municipality: props.Name,
		Province:     props.Context.Region.Name,
		DisplayName:  props.FullAddress,
	}, nil
}

// NominatimGeocoder uses OSM Nominatim, which allows one request per second.
type NominatimGeocoder struct {
	UserAgent string
	Client    *http.Client
	BaseURL   string

	mu       sync.Mutex
	lastCall time.Time
}

func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*Place, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}
	base := g.BaseURL
	if base == "" {
		base = "https://nominatim.openstreetmap.org"
	}
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lng))
	query.Set("zoom", "10")
	query.Set("addressdetails", "1")

	var data struct {
		DisplayName string `json:"display_name"`
		Address     struct {
			Municipality string `json:"municipality"`
			City         string `json:"city"`
			Town         string `json:"town"`
			Village      string `json:"village"`
			State        string `json:"state"`
			Province     string `json:"province"`
		} `json:"address"`
	}
	headers := map[string]string{"User-Agent": g.UserAgent}
	if err := getJSON(ctx, g.Client, base+"/reverse?"+query.Encode(), headers, &data); err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}

	municipality := firstNonEmpty(data.Address.Municipality, data.Address.City, data.Address.Town, data.Address.Village)
	if municipality == "" {
		return nil, nil
	}
	return &Place{
		Municipality: municipality,
		Province:     firstNonEmpty(data.Address.Province, data.Address.State),
		DisplayName:  data.DisplayName,
	}, nil
}

func (g *NominatimGeocoder) throttle(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	wait := time.Second - time.Since(g.lastCall)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	g.lastCall = time.Now()
	return nil
}

// FallbackGeocoder asks Secondary when Primary fails or finds nothing.
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*Place, error) {
	place, err := g.Primary.ReverseGeocode(ctx, lat, lng)
	if err == nil && place != nil {
		return place, nil
	}
	return g.Secondary.ReverseGeocode(ctx, lat, lng)
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// geocodeLocationAsync fills the municipality of a freshly created location in
// the background. Failures are logged and left for backfill-locations.
func (a *App) geocodeLocationAsync(locationID int, lat, lng float64) {
	if a.geocoder == nil || a.db == nil || locationID <= 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), geocodeTimeout)
		defer cancel()
		if err := a.geocodeLocation(ctx, locationID, lat, lng); err != nil {
			a.log.Warn("location geocoding failed", "location_id", locationID, "err", err)
		}
	}()
}

func (a *App) geocodeLocation(ctx context.Context, locationID int, lat, lng float64) error {
	place, err := a.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return err
	}
	if place == nil {
		return nil
	}
	return a.storeSetLocationMunicipality(ctx, locationID, place.Municipality)
}

// backfillMunicipalities geocodes every location still missing a
// municipality and returns how many were updated.
func (a *App) backfillMunicipalities(ctx context.Context) (int, error) {
	if a.geocoder == nil {
		return 0, errors.New("no geocoder configured")
	}
	locations, err := a.storeListLocationsWithoutMunicipality(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, location := range locations {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		lookupCtx, cancel := context.WithTimeout(ctx, geocodeTimeout)
		place, err := a.geocoder.ReverseGeocode(lookupCtx, location.Latitude, location.Longitude)
		cancel()
		if err != nil {
			a.log.Warn("location geocoding failed", "location_id", location.ID, "err", err)
			continue
		}
		if place == nil {
			a.log.Info("no municipality found", "location_id", location.ID, "name", location.Name)
			continue
		}
		if err := a.storeSetLocationMunicipality(ctx, location.ID, place.Municipality); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
