package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueryService_ListRequests 测试分页和过滤
func TestQueryService_ListRequests(t *testing.T) {
	f := newFixture(t)
	f.importRequisition(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := f.approvals.Submit(ctx, workflow.Identity{UserID: "S1"}, &service.SubmitRequest{
			EntityType: "requisition",
			EntityID:   fmt.Sprintf("REQ-%d", i),
		})
		require.NoError(t, err)
	}

	reqs, total, err := f.queries.ListRequests(ctx, &service.ListRequestsFilter{Page: 2, PageSize: 2, SortBy: "entity_id", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, reqs, 2)
	assert.Equal(t, "REQ-3", reqs[0].EntityID)
	assert.Equal(t, "REQ-4", reqs[1].EntityID)

	entityID := "REQ-2"
	reqs, total, err = f.queries.ListRequests(ctx, &service.ListRequestsFilter{EntityID: &entityID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "REQ-2", reqs[0].EntityID)

	approved := workflow.StatusApproved
	_, total, err = f.queries.ListRequests(ctx, &service.ListRequestsFilter{Status: &approved})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = f.queries.ListRequests(ctx, &service.ListRequestsFilter{SortBy: "id; DROP TABLE approval_requests"})
	assert.True(t, errors.Is(err, workflow.ErrValidation))

	_, _, err = f.queries.ListRequests(ctx, &service.ListRequestsFilter{Order: "sideways"})
	assert.True(t, errors.Is(err, workflow.ErrValidation))

	bogus := workflow.Status("archived")
	_, _, err = f.queries.ListRequests(ctx, &service.ListRequestsFilter{Status: &bogus})
	assert.True(t, errors.Is(err, workflow.ErrValidation))
}

// TestQueryService_Inbox 测试待办列表
func TestQueryService_Inbox(t *testing.T) {
	f := newFixture(t)
	f.importRequisition(t)
	ctx := context.Background()

	first, err := f.approvals.Submit(ctx, workflow.Identity{UserID: "S1"}, &service.SubmitRequest{EntityType: "requisition", EntityID: "REQ-1"})
	require.NoError(t, err)
	second, err := f.approvals.Submit(ctx, workflow.Identity{UserID: "S1"}, &service.SubmitRequest{EntityType: "requisition", EntityID: "REQ-2"})
	require.NoError(t, err)

	buyer := workflow.Identity{UserID: "B1", Roles: []string{"buyer"}}
	_, err = f.approvals.Act(ctx, second.ID, buyer, &service.ActRequest{Action: "approve"})
	require.NoError(t, err)

	inbox, err := f.queries.Inbox(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, first.ID, inbox[0].ID)

	inbox, err = f.queries.Inbox(ctx, workflow.Identity{UserID: "U1"})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, second.ID, inbox[0].ID)

	inbox, err = f.queries.Inbox(ctx, workflow.Identity{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

// TestQueryService_Notifications 测试通知列表和已读
func TestQueryService_Notifications(t *testing.T) {
	f := newFixture(t)
	f.importRequisition(t)
	ctx := context.Background()
	require.NoError(t, repository.NewUserRoleRepository(f.db).Assign("B1", "buyer"))

	_, err := f.approvals.Submit(ctx, workflow.Identity{UserID: "S1"}, &service.SubmitRequest{EntityType: "requisition", EntityID: "REQ-1"})
	require.NoError(t, err)

	list, err := f.queries.ListNotifications(ctx, "B1", true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "approval_required", list[0].Type)

	err = f.queries.MarkNotificationRead(ctx, list[0].ID, "someone-else")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))

	require.NoError(t, f.queries.MarkNotificationRead(ctx, list[0].ID, "B1"))
	list, err = f.queries.ListNotifications(ctx, "B1", true, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.queries.ListNotifications(ctx, "B1", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)
}
