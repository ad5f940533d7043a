// Package directory keeps communities, their members and their channels
// consistent: who may join, leave, create and delete what.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"converse-backend/internal/apperr"
	"converse-backend/internal/database"
	"converse-backend/internal/hub"
	"converse-backend/internal/metrics"
	"converse-backend/internal/models"
	"converse-backend/internal/snowflake"
	"converse-backend/internal/validator"

	"go.uber.org/zap"
)

const (
	DefaultIcon               = "🌐"
	DefaultChannelName        = "general"
	DefaultChannelDescription = "General discussion"
)

type Notifier interface {
	Emit(ctx context.Context, channelID int64, event string, data any) error
}

type Presence interface {
	IsOnline(ctx context.Context, userID int64) bool
}

type Directory struct {
	sugar    *zap.SugaredLogger
	store    *database.Store
	hub      Notifier
	presence Presence
	now      func() time.Time
}

func New(sugar *zap.SugaredLogger, store *database.Store, notifier Notifier, presence Presence) *Directory {
	return &Directory{sugar: sugar, store: store, hub: notifier, presence: presence, now: time.Now}
}

type NewCommunity struct {
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"max=500"`
	Icon        string `json:"icon" validate:"max=32"`
	IsPublic    *bool  `json:"isPublic"`
}

type NewChannel struct {
	CommunityID int64              `json:"communityId,string" validate:"required"`
	Name        string             `json:"name" validate:"required,min=1,max=50"`
	Description string             `json:"description" validate:"max=200"`
	Type        models.ChannelType `json:"type" validate:"omitempty,oneof=text voice video"`
}

func (d *Directory) loadCommunity(ctx context.Context, communityID int64) (models.Community, error) {
	community, err := d.store.GetCommunity(ctx, communityID)
	if errors.Is(err, database.ErrNotFound) {
		return community, apperr.New(apperr.NotFound, "Community not found")
	} else if err != nil {
		return community, fmt.Errorf("loading community %d: %w", communityID, err)
	}
	return community, nil
}

func (d *Directory) loadChannel(ctx context.Context, channelID int64) (models.Channel, error) {
	channel, err := d.store.GetChannel(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return channel, apperr.New(apperr.NotFound, "Channel not found")
	} else if err != nil {
		return channel, fmt.Errorf("loading channel %d: %w", channelID, err)
	}
	return channel, nil
}

func (d *Directory) requireMember(ctx context.Context, userID int64, communityID int64) error {
	exists, err := d.store.CommunityExists(ctx, communityID)
	if err != nil {
		return fmt.Errorf("checking community %d: %w", communityID, err)
	}
	if !exists {
		return apperr.New(apperr.NotFound, "Community not found")
	}

	isMember, err := d.store.IsMember(ctx, communityID, userID)
	if err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}
	if !isMember {
		return apperr.New(apperr.Forbidden, "You are not a member of this community")
	}
	return nil
}

// CreateCommunity creates the community with its owner as the only member and
// a default general channel. Nothing is kept if any of the writes fails.
func (d *Directory) CreateCommunity(ctx context.Context, ownerID int64, input NewCommunity) (models.Community, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if err := validator.Struct(input); err != nil {
		return models.Community{}, err
	}

	communityID, err := snowflake.Generate()
	if err != nil {
		return models.Community{}, err
	}
	channelID, err := snowflake.Generate()
	if err != nil {
		return models.Community{}, err
	}

	now := d.now()
	community := models.Community{
		ID:          communityID,
		Name:        input.Name,
		Description: input.Description,
		Icon:        input.Icon,
		OwnerID:     ownerID,
		IsPublic:    true,
		CreatedAt:   now,
	}
	if community.Icon == "" {
		community.Icon = DefaultIcon
	}
	if input.IsPublic != nil {
		community.IsPublic = *input.IsPublic
	}

	err = d.store.WithTx(ctx, func(q *database.Queries) error {
		if err := q.InsertCommunity(ctx, community); err != nil {
			return err
		}
		if err := q.AddMember(ctx, communityID, ownerID, now); err != nil {
			return err
		}
		return q.InsertChannel(ctx, models.Channel{
			ID:          channelID,
			Name:        DefaultChannelName,
			Description: DefaultChannelDescription,
			Type:        models.ChannelText,
			CommunityID: communityID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return models.Community{}, fmt.Errorf("creating community: %w", err)
	}

	d.sugar.Debugf("User ID [%d] created community ID [%d]", ownerID, communityID)
	metrics.CommunitiesCreated.Inc()
	return d.loadCommunity(ctx, communityID)
}

func (d *Directory) ListCommunities(ctx context.Context, userID int64) ([]models.Community, error) {
	communities, err := d.store.ListUserCommunities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing communities of user %d: %w", userID, err)
	}
	return communities, nil
}

func (d *Directory) GetCommunity(ctx context.Context, userID int64, communityID int64) (models.Community, error) {
	community, err := d.loadCommunity(ctx, communityID)
	if err != nil {
		return community, err
	}
	if !community.HasMember(userID) {
		return models.Community{}, apperr.New(apperr.Forbidden, "You are not a member of this community")
	}
	return community, nil
}

// JoinCommunity adds userID to a public community. The single membership row
// is both sides of the reference.
func (d *Directory) JoinCommunity(ctx context.Context, userID int64, communityID int64) (models.Community, error) {
	community, err := d.loadCommunity(ctx, communityID)
	if err != nil {
		return community, err
	}

	if !community.IsPublic {
		return models.Community{}, apperr.New(apperr.Forbidden, "This community is private")
	}
	if community.HasMember(userID) {
		return models.Community{}, apperr.New(apperr.Conflict, "You are already a member")
	}

	err = d.store.AddMember(ctx, communityID, userID, d.now())
	if errors.Is(err, database.ErrDuplicate) {
		return models.Community{}, apperr.New(apperr.Conflict, "You are already a member")
	} else if err != nil {
		return models.Community{}, fmt.Errorf("joining community %d: %w", communityID, err)
	}

	return d.loadCommunity(ctx, communityID)
}

func (d *Directory) LeaveCommunity(ctx context.Context, userID int64, communityID int64) error {
	community, err := d.loadCommunity(ctx, communityID)
	if err != nil {
		return err
	}

	if community.OwnerID == userID {
		return apperr.New(apperr.Forbidden, "Owner cannot leave the community")
	}

	err = d.store.RemoveMember(ctx, communityID, userID)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "You are not a member of this community")
	} else if err != nil {
		return fmt.Errorf("leaving community %d: %w", communityID, err)
	}
	return nil
}

// DeleteCommunity removes the community with all of its channels, messages,
// meetings and memberships. Owner only.
func (d *Directory) DeleteCommunity(ctx context.Context, requesterID int64, communityID int64) error {
	community, err := d.loadCommunity(ctx, communityID)
	if err != nil {
		return err
	}

	if community.OwnerID != requesterID {
		d.sugar.Warnf("User ID [%d] tried to delete community ID [%d] they don't own", requesterID, communityID)
		return apperr.New(apperr.Forbidden, "Only the owner can delete this community")
	}

	var channelIDs models.IDList
	err = d.store.WithTx(ctx, func(q *database.Queries) error {
		var err error
		if channelIDs, err = q.ChannelIDs(ctx, communityID); err != nil {
			return err
		}
		return q.DeleteCommunity(ctx, communityID)
	})
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Community not found")
	} else if err != nil {
		return fmt.Errorf("deleting community %d: %w", communityID, err)
	}

	for _, channelID := range channelIDs {
		d.notify(ctx, channelID, hub.ChannelDeleted, hub.ChannelDeletedPayload{ChannelID: channelID})
	}
	return nil
}

// ListMembers resolves the members of a community in join order, with
// whether each one has a live connection right now.
func (d *Directory) ListMembers(ctx context.Context, userID int64, communityID int64) ([]models.Member, error) {
	community, err := d.GetCommunity(ctx, userID, communityID)
	if err != nil {
		return nil, err
	}

	authors, err := d.store.GetAuthors(ctx, community.Members)
	if err != nil {
		return nil, fmt.Errorf("resolving members of community %d: %w", communityID, err)
	}

	members := make([]models.Member, len(authors))
	for i, author := range authors {
		members[i] = models.Member{Author: author}
		if d.presence != nil {
			members[i].Online = d.presence.IsOnline(ctx, author.ID)
		}
	}
	return members, nil
}

func (d *Directory) CreateChannel(ctx context.Context, requesterID int64, input NewChannel) (models.Channel, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if err := validator.Struct(input); err != nil {
		return models.Channel{}, err
	}
	if input.Type == "" {
		input.Type = models.ChannelText
	}

	if err := d.requireMember(ctx, requesterID, input.CommunityID); err != nil {
		return models.Channel{}, err
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		return models.Channel{}, err
	}

	channel := models.Channel{
		ID:          channelID,
		Name:        input.Name,
		Description: input.Description,
		Type:        input.Type,
		CommunityID: input.CommunityID,
		CreatedAt:   d.now(),
	}

	err = d.store.WithTx(ctx, func(q *database.Queries) error {
		return q.InsertChannel(ctx, channel)
	})
	if err != nil {
		return models.Channel{}, fmt.Errorf("creating channel: %w", err)
	}

	return d.loadChannel(ctx, channelID)
}

func (d *Directory) ListChannels(ctx context.Context, userID int64, communityID int64) ([]models.Channel, error) {
	if err := d.requireMember(ctx, userID, communityID); err != nil {
		return nil, err
	}

	channels, err := d.store.ListChannels(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("listing channels of community %d: %w", communityID, err)
	}
	return channels, nil
}

func (d *Directory) GetChannel(ctx context.Context, userID int64, channelID int64) (models.Channel, error) {
	channel, err := d.loadChannel(ctx, channelID)
	if err != nil {
		return channel, err
	}
	if err := d.requireMember(ctx, userID, channel.CommunityID); err != nil {
		return models.Channel{}, err
	}
	return channel, nil
}

// DeleteChannel removes the channel and every message in it. Only the owner
// of the community may do this.
func (d *Directory) DeleteChannel(ctx context.Context, requesterID int64, channelID int64) error {
	communityID, err := d.store.ChannelCommunityID(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Channel not found")
	} else if err != nil {
		return fmt.Errorf("resolving channel %d: %w", channelID, err)
	}

	community, err := d.loadCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	if community.OwnerID != requesterID {
		d.sugar.Warnf("User ID [%d] tried to delete channel ID [%d] in community ID [%d] they don't own", requesterID, channelID, communityID)
		return apperr.New(apperr.Forbidden, "Only the community owner can delete channels")
	}

	err = d.store.WithTx(ctx, func(q *database.Queries) error {
		return q.DeleteChannel(ctx, channelID)
	})
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Channel not found")
	} else if err != nil {
		return fmt.Errorf("deleting channel %d: %w", channelID, err)
	}

	d.notify(ctx, channelID, hub.ChannelDeleted, hub.ChannelDeletedPayload{ChannelID: channelID})
	return nil
}

// CanReadChannel is the room check the hub runs before a subscription.
func (d *Directory) CanReadChannel(ctx context.Context, userID int64, channelID int64) error {
	communityID, err := d.store.ChannelCommunityID(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Channel not found")
	} else if err != nil {
		return fmt.Errorf("resolving channel %d: %w", channelID, err)
	}
	return d.requireMember(ctx, userID, communityID)
}

func (d *Directory) notify(ctx context.Context, channelID int64, event string, data any) {
	if d.hub == nil {
		return
	}
	if err := d.hub.Emit(ctx, channelID, event, data); err != nil {
		d.sugar.Errorf("Failed to emit %s to channel ID [%d]: %v", event, channelID, err)
	}
}
