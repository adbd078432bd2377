package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"apzla-backend/logger"
	"apzla-backend/models"
	"apzla-backend/store"
)

// Directory is the member directory the check-in flow resolves people
// against. Every key is scoped by tenant.
type Directory struct {
	store     store.Store
	normalize PhoneNormalizer
	clock     Clock
}

func NewDirectory(st store.Store, normalize PhoneNormalizer, clock Clock) *Directory {
	if normalize == nil {
		normalize = NormalizePhone
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Directory{store: st, normalize: normalize, clock: clock}
}

func MemberKey(tenantID, memberID string) string {
	return tenantID + ":" + memberID
}

func PhoneIndexKey(tenantID, normalizedPhone string) string {
	return tenantID + ":" + normalizedPhone
}

// ResolveByPhone returns the single member of tenantID with this phone.
// No match and several matches both yield the same PersonNotFound error.
func (d *Directory) ResolveByPhone(ctx context.Context, tx store.Tx, tenantID, phone string) (string, error) {
	normalized := d.normalize(phone)
	if normalized == "" {
		return "", newError(KindPersonNotFound, msgPersonNotFound)
	}

	var idx models.MemberPhoneIndex
	err := tx.Get(ctx, models.CollectionMemberPhones, PhoneIndexKey(tenantID, normalized), &idx)
	if errors.Is(err, store.ErrNotFound) {
		return "", newError(KindPersonNotFound, msgPersonNotFound)
	}
	if err != nil {
		return "", wrapError(KindStore, msgStoreFailure, err)
	}
	if len(idx.MemberIDs) != 1 {
		return "", newError(KindPersonNotFound, msgPersonNotFound)
	}
	return idx.MemberIDs[0], nil
}

// EnsureMember checks that memberID belongs to tenantID.
func (d *Directory) EnsureMember(ctx context.Context, tx store.Tx, tenantID, memberID string) error {
	var m models.Member
	err := tx.Get(ctx, models.CollectionMembers, MemberKey(tenantID, memberID), &m)
	if errors.Is(err, store.ErrNotFound) || (err == nil && m.TenantID != tenantID) {
		return newError(KindPersonNotFound, msgPersonNotFound)
	}
	if err != nil {
		return wrapError(KindStore, msgStoreFailure, err)
	}
	return nil
}

// Register adds a member and indexes their phone in one transaction.
// A phone already on file for the tenant returns the member holding it,
// so repeated submits of the same registration land on one record.
func (d *Directory) Register(ctx context.Context, m models.Member) (*models.Member, error) {
	m.TenantID = strings.TrimSpace(m.TenantID)
	m.Name = strings.TrimSpace(m.Name)
	m.Phone = strings.TrimSpace(m.Phone)
	m.Email = strings.TrimSpace(m.Email)
	m.PhoneNormalized = d.normalize(m.Phone)

	if m.TenantID == "" {
		return nil, newError(KindValidation, "tenantId is required")
	}
	if m.Name == "" {
		return nil, newError(KindValidation, "name is required")
	}
	if m.PhoneNormalized == "" {
		return nil, newError(KindValidation, "a valid phone number is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	} else if _, err := uuid.Parse(m.ID); err != nil {
		return nil, newError(KindValidation, msgInvalidPersonID)
	}
	m.CreatedAt = models.InstantOf(d.clock.Now())

	var result models.Member
	err := d.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		result = m
		indexKey := PhoneIndexKey(m.TenantID, m.PhoneNormalized)

		var idx models.MemberPhoneIndex
		err := tx.Get(ctx, models.CollectionMemberPhones, indexKey, &idx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if len(idx.MemberIDs) > 0 {
			var existing models.Member
			err := tx.Get(ctx, models.CollectionMembers, MemberKey(m.TenantID, idx.MemberIDs[0]), &existing)
			if err == nil {
				result = existing
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			// Index entry points at a missing member, rebuild it.
			idx.MemberIDs = nil
		}
		idx.TenantID = m.TenantID
		idx.Phone = m.PhoneNormalized
		idx.MemberIDs = append(idx.MemberIDs, m.ID)

		if err := tx.Set(ctx, models.CollectionMembers, MemberKey(m.TenantID, m.ID), m); err != nil {
			return err
		}
		return tx.Set(ctx, models.CollectionMemberPhones, indexKey, idx)
	})
	if err != nil {
		logger.Error("failed to register member", logger.Fields{"tenantId": m.TenantID, "error": err})
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}

	if result.ID != m.ID {
		logger.Info("phone already registered, returning existing member", logger.Fields{"tenantId": m.TenantID, "memberId": result.ID})
	}
	return &result, nil
}

// Get returns one member of tenantID.
func (d *Directory) Get(ctx context.Context, tenantID, memberID string) (*models.Member, error) {
	if _, err := uuid.Parse(memberID); err != nil {
		return nil, newError(KindValidation, msgInvalidPersonID)
	}

	var m models.Member
	err := d.store.Get(ctx, models.CollectionMembers, MemberKey(tenantID, memberID), &m)
	if errors.Is(err, store.ErrNotFound) || (err == nil && m.TenantID != tenantID) {
		return nil, newError(KindPersonNotFound, "Member not found")
	}
	if err != nil {
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}
	return &m, nil
}
