package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"apzla-backend/models"
	"apzla-backend/store"
)

// resolveBaseURL picks the public origin for a link: the explicit value,
// then the tenant's own setting, then the service-wide default.
func resolveBaseURL(ctx context.Context, st store.Store, tenantID, explicit, fallback string) (string, error) {
	if base := strings.TrimRight(strings.TrimSpace(explicit), "/"); base != "" {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", newError(KindValidation, "baseUrl must be an absolute http(s) URL")
		}
		return base, nil
	}

	var tenant models.Tenant
	err := st.Get(ctx, models.CollectionTenants, tenantID, &tenant)
	switch {
	case err == nil:
		if base := strings.TrimRight(strings.TrimSpace(tenant.PublicBaseURL), "/"); base != "" {
			return base, nil
		}
	case !errors.Is(err, store.ErrNotFound):
		return "", wrapError(KindStore, msgStoreFailure, err)
	}

	if base := strings.TrimRight(fallback, "/"); base != "" {
		return base, nil
	}
	return "", newError(KindMissingBaseURL, msgMissingBaseURL)
}

func buildLink(base, path, token string) string {
	return base + path + "?token=" + url.QueryEscape(token)
}

func qrImageURL(qrBase, link string) string {
	if qrBase == "" {
		return ""
	}
	return qrBase + "?size=300x300&data=" + url.QueryEscape(link)
}
