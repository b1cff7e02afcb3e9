package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

func TestNormalizeTarget(t *testing.T) {
	valid := map[string]string{
		"https://example.com/page":  "https://example.com/page",
		"  http://example.com  ":    "http://example.com",
		"https://example.com?q=1+2": "https://example.com?q=1+2",
	}
	for raw, want := range valid {
		got, err := NormalizeTarget(raw)
		if err != nil {
			t.Errorf("Expected %q to normalize, got %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", raw, got, want)
		}
	}

	invalid := []string{
		"ftp://example.com",
		"javascript:alert(1)",
		"example.com/no-scheme",
		"https://",
		"",
	}
	for _, raw := range invalid {
		if _, err := NormalizeTarget(raw); err == nil {
			t.Errorf("Expected %q to be rejected", raw)
		}
	}
}

func TestLinkCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("AnonymousCreate", func(t *testing.T) {
		env := newTestEnv(t)

		link, err := env.linkSvc.Create(ctx, nil, dto.CreateLinkRequest{Target: "https://example.com"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if link.OwnerID != nil {
			t.Error("Anonymous link must have no owner")
		}
		if len(link.Code) != shared.CodeLength {
			t.Errorf("Expected generated code of length %d, got %q", shared.CodeLength, link.Code)
		}
		if link.Status != shared.StatusActive {
			t.Errorf("New link should be active, got %q", link.Status)
		}
	})

	t.Run("OwnedCreateConsumesCounter", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierFree)

		if _, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		usage, err := env.counterSvc.Usage(ctx, owner.ID)
		if err != nil {
			t.Fatalf("Usage failed: %v", err)
		}
		if usage[shared.KindURL] != 1 {
			t.Errorf("Expected url usage 1, got %d", usage[shared.KindURL])
		}
	})

	t.Run("CeilingDeniesCreate", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierFree)

		ceiling := shared.TierCeiling(shared.TierFree, shared.KindURL)
		for i := int64(0); i < ceiling; i++ {
			if _, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com"}); err != nil {
				t.Fatalf("Create %d failed: %v", i, err)
			}
		}

		_, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com"})
		appErr, ok := shared.GetAppError(err)
		if !ok || appErr.StatusCode != 403 {
			t.Fatalf("Expected limit rejection, got %v", err)
		}
	})

	t.Run("CustomCodeConflict", func(t *testing.T) {
		env := newTestEnv(t)

		if _, err := env.linkSvc.Create(ctx, nil, dto.CreateLinkRequest{Target: "https://example.com", Code: "mycode"}); err != nil {
			t.Fatalf("First create failed: %v", err)
		}

		_, err := env.linkSvc.Create(ctx, nil, dto.CreateLinkRequest{Target: "https://other.com", Code: "mycode"})
		appErr, ok := shared.GetAppError(err)
		if !ok || appErr.StatusCode != 409 {
			t.Fatalf("Expected 409 on duplicate code, got %v", err)
		}
	})

	t.Run("ConflictReleasesCounter", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierFree)

		if _, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com", Code: "mycode"}); err != nil {
			t.Fatalf("First create failed: %v", err)
		}
		if _, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://other.com", Code: "mycode"}); err == nil {
			t.Fatal("Expected conflict")
		}

		usage, _ := env.counterSvc.Usage(ctx, owner.ID)
		if usage[shared.KindURL] != 1 {
			t.Errorf("Failed insert must release its counter claim, got usage %d", usage[shared.KindURL])
		}
	})

	t.Run("InvalidTargetRejected", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.linkSvc.Create(ctx, nil, dto.CreateLinkRequest{Target: "ftp://example.com"})
		appErr, ok := shared.GetAppError(err)
		if !ok || appErr.StatusCode != 400 {
			t.Fatalf("Expected 400, got %v", err)
		}
	})

	t.Run("CreateAppendsAnalyticsEvent", func(t *testing.T) {
		env := newTestEnv(t)

		link, err := env.linkSvc.Create(ctx, nil, dto.CreateLinkRequest{Target: "https://example.com"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		var count int64
		env.sqlSvc.Db().Model(&model.AnalyticsEvent{}).
			Where("resource_id = ? AND kind = ?", link.ID, shared.EventCreated).
			Count(&count)
		if count != 1 {
			t.Errorf("Expected one created event, got %d", count)
		}
	})

	t.Run("CreateCarriesRequesterMetadata", func(t *testing.T) {
		env := newTestEnv(t)

		link, err := env.linkSvc.Create(ctx, nil, dto.CreateLinkRequest{
			Target: "https://example.com",
			Meta:   dto.RequestMeta{OriginHash: "hash-1", UserAgent: "curl/8.4.0", Suspicious: true},
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		var event model.AnalyticsEvent
		err = env.sqlSvc.Db().
			Where("resource_id = ? AND kind = ?", link.ID, shared.EventCreated).
			First(&event).Error
		if err != nil {
			t.Fatalf("Expected created event: %v", err)
		}
		if event.OriginHash != "hash-1" {
			t.Errorf("Expected origin hash on the event, got %q", event.OriginHash)
		}
		if !event.Suspicious {
			t.Error("Suspicious creations should be flagged on the event")
		}
	})
}

func TestLinkUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("PatchSemantics", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierPro)

		link, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{
			Target: "https://example.com",
			Title:  "Original",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		title := "Renamed"
		updated, err := env.linkSvc.Update(ctx, link.Code, owner.ID, dto.UpdateLinkRequest{Title: &title})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.Title != "Renamed" {
			t.Errorf("Expected renamed title, got %q", updated.Title)
		}
		if updated.Target != "https://example.com" {
			t.Errorf("Omitted fields must be untouched, target became %q", updated.Target)
		}
	})

	t.Run("NonOwnerForbidden", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierPro)
		other := env.account(t, shared.TierPro)

		link, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		title := "Hijack"
		_, err = env.linkSvc.Update(ctx, link.Code, other.ID, dto.UpdateLinkRequest{Title: &title})
		appErr, ok := shared.GetAppError(err)
		if !ok || appErr.StatusCode != 403 {
			t.Fatalf("Expected 403, got %v", err)
		}
	})

	t.Run("AnonymousLinkNotEditable", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierPro)

		link, err := env.linkSvc.Create(ctx, nil, dto.CreateLinkRequest{Target: "https://example.com"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		title := "Mine now"
		if _, err := env.linkSvc.Update(ctx, link.Code, owner.ID, dto.UpdateLinkRequest{Title: &title}); err == nil {
			t.Fatal("Anonymous links must not be editable through update")
		}
	})

	t.Run("ClearPassword", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierPro)

		link, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{
			Target:   "https://example.com",
			Password: "hunter22",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if link.PasswordHash == nil {
			t.Fatal("Expected password hash to be set")
		}
		if strings.Contains(*link.PasswordHash, "hunter22") {
			t.Fatal("Password must not be stored in the clear")
		}

		empty := ""
		updated, err := env.linkSvc.Update(ctx, link.Code, owner.ID, dto.UpdateLinkRequest{Password: &empty})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.PasswordHash != nil {
			t.Error("Empty password should clear protection")
		}
	})
}

func TestLinkDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("DeleteReleasesUrlSlot", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierFree)

		link, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if err := env.linkSvc.Delete(ctx, link.Code, owner.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		usage, _ := env.counterSvc.Usage(ctx, owner.ID)
		if usage[shared.KindURL] != 0 {
			t.Errorf("Delete must release the url slot, got %d", usage[shared.KindURL])
		}

		if _, err := env.linkSvc.Get(ctx, link.Code); err == nil {
			t.Error("Deleted link should not resolve")
		}
	})

	t.Run("EventsOutliveResource", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.account(t, shared.TierFree)

		link, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := env.linkSvc.Delete(ctx, link.Code, owner.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		var count int64
		env.sqlSvc.Db().Model(&model.AnalyticsEvent{}).Where("resource_id = ?", link.ID).Count(&count)
		if count < 2 {
			t.Errorf("Expected created and deleted events to survive, got %d", count)
		}
	})
}

func TestLinkListByOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.account(t, shared.TierPro)
	other := env.account(t, shared.TierPro)

	for i := 0; i < 3; i++ {
		if _, err := env.linkSvc.Create(ctx, owner, dto.CreateLinkRequest{Target: "https://example.com"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := env.linkSvc.Create(ctx, other, dto.CreateLinkRequest{Target: "https://example.com"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	links, err := env.linkSvc.ListByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("Expected 3 links, got %d", len(links))
	}
	for i := 1; i < len(links); i++ {
		if links[i].CreatedAt.After(links[i-1].CreatedAt) {
			t.Error("Expected newest-first ordering")
		}
	}
}
