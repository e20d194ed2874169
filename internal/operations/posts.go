// ABOUTME: Job post operations: create, delete, edit, accept, withdraw, search and list
// ABOUTME: Post keywords are extracted from the description when the post is created

package operations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/gigs-gateway/internal/dispatch"
	"github.com/2389/gigs-gateway/internal/keywords"
	"github.com/2389/gigs-gateway/internal/store"
)

const (
	day = 24 * time.Hour

	// Posts stay listed at least this long after creation and after their end date.
	expiryGrace = 7 * day

	// maxDurationDays keeps the end date well inside time.Duration's range.
	maxDurationDays = 3650
)

func (s *Service) createPost(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	now := s.now().UTC()
	duration := number(call.Body["duration"])
	if duration < 0 || duration > maxDurationDays {
		return dispatch.Failure(dispatch.ErrRequestInvalid, "duration must be between 0 and 3650 days")
	}
	endDate := now.Add(time.Duration(duration * float64(day)))
	expires := now.Add(expiryGrace)
	if after := endDate.Add(expiryGrace); after.After(expires) {
		expires = after
	}

	skills, _ := call.Body["skills"].([]any)
	location, _ := call.Body["location"].(map[string]any)
	description := call.String("description")

	post := &store.Post{
		ID:          uuid.NewString(),
		OwnerID:     call.Identity.ID,
		Title:       call.String("title"),
		Description: description,
		Remarks:     call.String("remarks"),
		Skills:      skills,
		Comp:        number(call.Body["comp"]),
		Duration:    duration,
		Location:    location,
		Tags:        keywords.Extract(description),
		CreatedAt:   now,
		EndDate:     endDate,
		ExpiresAt:   expires,
	}

	if err := s.store.CreatePost(ctx, post); err != nil {
		return s.internalError("post", err)
	}
	return dispatch.Success(dispatch.OKPostCreated, "post created", map[string]string{"postid": post.ID})
}

func (s *Service) deletePost(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	err := s.store.DeletePost(ctx, call.String("postid"), call.Identity.ID)
	if errors.Is(err, store.ErrNotFound) {
		return dispatch.Failure(dispatch.ErrDeleteFailed, "post delete failed")
	}
	if err != nil {
		return s.internalError("delete", err)
	}
	return dispatch.Success(dispatch.OKPostDeleted, "post deleted", nil)
}

func (s *Service) editPost(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	err := s.store.UpdatePostField(ctx, call.String("postid"), call.Identity.ID, call.String("type"), call.String("data"))
	switch {
	case err == nil:
		return dispatch.Success(dispatch.OKAlterComplete, "post altered", nil)
	case errors.Is(err, store.ErrImmutableField):
		return dispatch.Failure(dispatch.ErrAlterFailed, "post alter failed")
	case errors.Is(err, store.ErrNotFound):
		return dispatch.Failure(dispatch.ErrPostNotExist, "post does not exist")
	default:
		return s.internalError("edit", err)
	}
}

func (s *Service) acceptPost(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	err := s.store.AcceptPost(ctx, call.Identity.ID, call.String("postid"))
	switch {
	case err == nil:
		s.logger.Info("job accepted", "uuid", call.Identity.ID, "postid", call.String("postid"))
		return dispatch.Success(dispatch.OKJobAccepted, "job accepted", nil)
	case errors.Is(err, store.ErrNotFound):
		return dispatch.Failure(dispatch.ErrPostNotExist, "post does not exist")
	case errors.Is(err, store.ErrAlreadyAccepted):
		return dispatch.Failure(dispatch.ErrJobAcceptFailed, "job accept failed")
	default:
		return s.internalError("accept", err)
	}
}

func (s *Service) withdrawPost(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	postID := call.String("postid")
	if _, err := s.store.GetPost(ctx, postID); errors.Is(err, store.ErrNotFound) {
		return dispatch.Failure(dispatch.ErrPostNotExist, "post does not exist")
	} else if err != nil {
		return s.internalError("withdraw", err)
	}

	err := s.store.WithdrawPost(ctx, call.Identity.ID, postID)
	if errors.Is(err, store.ErrNotFound) {
		return dispatch.Failure(dispatch.ErrPostNotExist, "post does not exist")
	}
	if err != nil {
		s.logger.Error("withdraw failed", "uuid", call.Identity.ID, "postid", postID, "error", err)
		return dispatch.Failure(dispatch.ErrWithdrawFailed, "job withdraw failed")
	}
	return dispatch.Success(dispatch.OKWithdrawComplete, "job withdrawn", nil)
}

func (s *Service) searchByKey(ctx context.Context, call *dispatch.Call) dispatch.Outcome {
	raw, _ := call.Body["keywords"].([]any)
	terms := make([]string, 0, len(raw))
	for _, v := range raw {
		if kw, ok := v.(string); ok && kw != "" {
			terms = append(terms, strings.ToLower(kw))
		}
	}

	posts, err := s.store.SearchByKeywords(ctx, terms)
	if err != nil {
		return s.internalError("searchbykey", err)
	}
	return dispatch.Success(dispatch.OKQueryComplete, "query complete", s.render(posts))
}

func (s *Service) queryAll(ctx context.Context, _ *dispatch.Call) dispatch.Outcome {
	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		return s.internalError("queryall", err)
	}
	return dispatch.Success(dispatch.OKQueryComplete, "query complete", s.render(posts))
}
