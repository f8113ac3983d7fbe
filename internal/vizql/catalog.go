package vizql

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strings"

	cache "github.com/patrickmn/go-cache"

	"vizquery/internal/query"
)

// datasourcesPageSize matches the upstream default page size.
const datasourcesPageSize = 100

// datasourcesResponse mirrors the XML body of the site datasources listing.
type datasourcesResponse struct {
	XMLName    xml.Name `xml:"tsResponse"`
	Pagination struct {
		TotalAvailable int `xml:"totalAvailable,attr"`
	} `xml:"pagination"`
	Datasources struct {
		Datasource []struct {
			ID   string `xml:"id,attr"`
			Name string `xml:"name,attr"`
		} `xml:"datasource"`
	} `xml:"datasources"`
}

// ListDataSources fetches all published data sources on the configured
// site, following REST pagination. If the REST listing yields nothing it
// falls back to the VizQL list-datasources endpoint, which some deployments
// expose when the site listing is restricted.
func (c *Client) ListDataSources(ctx context.Context) ([]query.DataSource, error) {
	token, siteID, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var all []query.DataSource
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/api/%s/sites/%s/datasources?pageSize=%d&pageNumber=%d",
			c.cfg.ServerURL, c.cfg.APIVersion, siteID, datasourcesPageSize, page)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build datasources request: %w", err)
		}
		req.Header.Set("X-Tableau-Auth", token)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: list data sources: %v", ErrUpstreamUnavailable, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if page == 1 {
				break // listing unavailable, fall through to the VizQL listing
			}
			// A partial listing must never pass for a complete one.
			return nil, fmt.Errorf("%w: datasources page %d returned status %d", ErrUpstreamUnavailable, page, resp.StatusCode)
		}

		var parsed datasourcesResponse
		err = xml.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("parse datasources response: %w", err)
		}

		// An empty page ends the walk even if totalAvailable claims more;
		// the count can overshoot when a source is deleted mid-listing.
		if len(parsed.Datasources.Datasource) == 0 {
			break
		}
		for _, ds := range parsed.Datasources.Datasource {
			all = append(all, query.DataSource{LUID: ds.ID, Name: ds.Name, Site: c.cfg.Site})
		}
		if parsed.Pagination.TotalAvailable == 0 || len(all) >= parsed.Pagination.TotalAvailable {
			break
		}
	}

	if len(all) == 0 {
		fallback, err := c.listDataSourcesVizQL(ctx)
		if err != nil {
			return nil, err
		}
		all = fallback
	}

	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name)
	})
	return all, nil
}

// listDataSourcesVizQL is the JSON fallback listing.
func (c *Client) listDataSourcesVizQL(ctx context.Context) ([]query.DataSource, error) {
	status, raw, err := c.post(ctx, c.vizqlURL("list-datasources"), struct{}{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: list-datasources status %d: %s", ErrUpstreamUnavailable, status, string(raw))
	}

	var parsed listDatasourcesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("list-datasources: %v", err)}
	}

	out := make([]query.DataSource, 0, len(parsed.Datasources))
	for _, ds := range parsed.Datasources {
		if ds.LUID == "" {
			continue
		}
		out = append(out, query.DataSource{LUID: ds.LUID, Name: ds.Name, Site: c.cfg.Site})
	}
	return out, nil
}

// ListFields returns the typed field catalog of a data source, ordered as
// the upstream reports it. Results are cached per LUID for the process
// lifetime; use RefreshFields to force a re-fetch.
func (c *Client) ListFields(ctx context.Context, dataSourceID string) ([]query.Field, error) {
	if cached, ok := c.fields.Get(dataSourceID); ok {
		return cached.([]query.Field), nil
	}
	return c.RefreshFields(ctx, dataSourceID)
}

// RefreshFields re-fetches the field catalog, replacing any cached entry.
func (c *Client) RefreshFields(ctx context.Context, dataSourceID string) ([]query.Field, error) {
	payload := struct {
		Datasource DatasourceRef `json:"datasource"`
	}{Datasource: DatasourceRef{DatasourceLUID: dataSourceID}}

	status, raw, err := c.post(ctx, c.vizqlURL("read-metadata"), payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classify(status, raw)
	}

	var parsed metadataResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("read-metadata: %v", err)}
	}

	fields := make([]query.Field, 0, len(parsed.Data))
	for _, f := range parsed.Data {
		role, ftype, ok := mapDataType(f.DataType)
		if !ok {
			c.log.WithFields(map[string]interface{}{
				"field": f.FieldName, "dataType": f.DataType,
			}).Debug("skipping field with unsupported data type")
			continue
		}
		fields = append(fields, query.Field{
			Name:       f.FieldName,
			DataSource: dataSourceID,
			Role:       role,
			Type:       ftype,
		})
	}

	c.fields.Set(dataSourceID, fields, cache.NoExpiration)
	c.log.WithFields(map[string]interface{}{
		"datasource": dataSourceID, "fields": len(fields),
	}).Debug("field catalog refreshed")
	return fields, nil
}

// mapDataType converts an upstream data type to a role and field type.
// STRING, BOOLEAN, DATE and DATETIME fields group (dimensions); INTEGER and
// REAL fields aggregate (measures). DATETIME collapses to day precision,
// which is all the upstream query contract can express.
func mapDataType(dataType string) (query.Role, query.FieldType, bool) {
	switch dataType {
	case "STRING":
		return query.RoleDimension, query.TypeString, true
	case "BOOLEAN":
		return query.RoleDimension, query.TypeBoolean, true
	case "DATE", "DATETIME":
		return query.RoleDimension, query.TypeDate, true
	case "INTEGER", "REAL":
		return query.RoleMeasure, query.TypeNumber, true
	default:
		return "", "", false
	}
}

// ListFieldValues fetches the distinct values of a single dimension,
// typically to offer set-filter choices. Values come back sorted.
func (c *Client) ListFieldValues(ctx context.Context, dataSourceID, fieldName string) ([]string, error) {
	req := &QueryRequest{
		Datasource: DatasourceRef{DatasourceLUID: dataSourceID},
		Query:      QuerySpec{Fields: []FieldRef{{FieldCaption: fieldName}}},
	}

	table, err := c.Execute(ctx, req, []string{fieldName})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var values []string
	for _, row := range table.Rows {
		if row[0] == nil {
			continue
		}
		v := fmt.Sprintf("%v", row[0])
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return values, nil
}
