package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	identity "notto/internal/identity/models"
	lotto "notto/internal/lotto/models"
	"notto/internal/platform/metrics"
	"notto/internal/storage"
	dErrors "notto/pkg/domain-errors"
	"notto/pkg/requestcontext"
)

// appMetrics is shared across the suite; prometheus collectors register
// globally and must only be created once per process.
var appMetrics = metrics.New()

type IdentityServiceSuite struct {
	suite.Suite
	store   *storage.Memory
	service *Service
	ctx     context.Context
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	s.store = storage.NewMemory()
	s.service = New(s.store, appMetrics, slog.New(slog.DiscardHandler))
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *IdentityServiceSuite) addIdentity(name string, status identity.Status, numbers []int) identity.Identity {
	id := identity.NewIdentity(name, time.Now())
	id.Status = status
	id.FixedNumbers = numbers
	s.Require().NoError(s.store.SaveIdentity(s.ctx, id))
	return id
}

func (s *IdentityServiceSuite) TestRegister() {
	s.Run("new name becomes pending", func() {
		result, err := s.service.Register(s.ctx, "홍길동")
		s.Require().NoError(err)
		s.Equal("홍길동", result.Name)
		s.Equal(identity.StatusPending, result.Status)
		s.False(result.Revived)
	})

	s.Run("whitespace is normalized", func() {
		result, err := s.service.Register(s.ctx, "  김  철수 ")
		s.Require().NoError(err)
		s.Equal("김 철수", result.Name)
	})

	s.Run("pending name conflicts", func() {
		_, err := s.service.Register(s.ctx, "홍길동")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNameExists))
	})

	s.Run("active name conflicts", func() {
		s.addIdentity("이영희", identity.StatusActive, []int{1, 2, 3, 4, 5, 6})
		_, err := s.service.Register(s.ctx, "이영희")
		s.True(dErrors.HasCode(err, dErrors.CodeNameExists))
	})

	s.Run("empty name is rejected", func() {
		_, err := s.service.Register(s.ctx, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("overlong name is rejected", func() {
		_, err := s.service.Register(s.ctx, "가나다라마바사아자차카타파하가나다라마바사")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("twenty runes are accepted", func() {
		_, err := s.service.Register(s.ctx, "가나다라마바사아자차카타파하가나다라마바")
		s.NoError(err)
	})
}

func (s *IdentityServiceSuite) TestRegisterRevival() {
	for _, status := range []identity.Status{identity.StatusRejected, identity.StatusDeleted} {
		s.Run(string(status), func() {
			name := "부활" + string(status)
			id := s.addIdentity(name, status, []int{1, 2, 3, 4, 5, 6})
			id.RejectReason = "old reason"
			s.Require().NoError(s.store.SaveIdentity(s.ctx, id))

			result, err := s.service.Register(s.ctx, name)
			s.Require().NoError(err)
			s.True(result.Revived)
			s.Equal(identity.StatusPending, result.Status)

			got, err := s.store.FindIdentityByName(s.ctx, name)
			s.Require().NoError(err)
			s.Equal(identity.StatusPending, got.Status)
			s.Empty(got.RejectReason)
			// The record survives, numbers included.
			s.Equal([]int{1, 2, 3, 4, 5, 6}, got.FixedNumbers)
		})
	}
}

func (s *IdentityServiceSuite) TestCheckName() {
	s.addIdentity("홍길동", identity.StatusActive, []int{1, 2, 3, 4, 5, 6})

	s.Run("existing name", func() {
		result, err := s.service.CheckName(s.ctx, "홍길동")
		s.Require().NoError(err)
		s.True(result.Exists)
		s.Equal(identity.StatusActive, result.Status)
	})

	s.Run("free name", func() {
		result, err := s.service.CheckName(s.ctx, "김철수")
		s.Require().NoError(err)
		s.False(result.Exists)
		s.Empty(result.Status)
	})
}

func (s *IdentityServiceSuite) TestLookup() {
	s.addIdentity("홍길동", identity.StatusActive, []int{5, 12, 18, 23, 31, 44})
	s.addIdentity("김철수", identity.StatusPending, nil)
	s.addIdentity("이영희", identity.StatusRejected, []int{1, 2, 3, 4, 5, 6})

	s.Run("active name returns numbers", func() {
		result, err := s.service.Lookup(s.ctx, "홍길동")
		s.Require().NoError(err)
		s.Equal([]int{5, 12, 18, 23, 31, 44}, result.FixedNumbers)
	})

	s.Run("pending name has no numbers yet", func() {
		result, err := s.service.Lookup(s.ctx, "김철수")
		s.Require().NoError(err)
		s.Equal(identity.StatusPending, result.Status)
		s.Empty(result.FixedNumbers)
	})

	s.Run("rejected name never leaks numbers", func() {
		result, err := s.service.Lookup(s.ctx, "이영희")
		s.Require().NoError(err)
		s.Empty(result.FixedNumbers)
	})

	s.Run("unknown name", func() {
		_, err := s.service.Lookup(s.ctx, "없는이름")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestSearch() {
	s.addIdentity("홍길동", identity.StatusActive, []int{5, 12, 18, 23, 31, 44})
	s.addIdentity("홍길순", identity.StatusActive, []int{1, 2, 3, 4, 5, 6})
	s.addIdentity("김철수", identity.StatusActive, []int{7, 8, 9, 10, 11, 12})
	s.addIdentity("홍당무", identity.StatusPending, nil)

	s.Run("substring over active names", func() {
		result, err := s.service.Search(s.ctx, "홍길", 1, 20)
		s.Require().NoError(err)
		s.Equal(2, result.Total)
	})

	s.Run("exact match surfaces regardless of status", func() {
		result, err := s.service.Search(s.ctx, "홍당무", 1, 20)
		s.Require().NoError(err)
		s.Require().Len(result.Items, 1)
		s.Equal(identity.StatusPending, result.Items[0].Status)
		s.Empty(result.Items[0].FixedNumbers)
	})

	s.Run("pending names do not match by substring", func() {
		result, err := s.service.Search(s.ctx, "홍당", 1, 20)
		s.Require().NoError(err)
		s.Zero(result.Total)
	})

	s.Run("empty query is rejected", func() {
		_, err := s.service.Search(s.ctx, " ", 1, 20)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *IdentityServiceSuite) TestSearchDecoratesWithLatestRound() {
	id := s.addIdentity("홍길동", identity.StatusActive, []int{5, 12, 18, 23, 31, 44})

	s.Require().NoError(s.store.CreateRound(s.ctx, lotto.Round{
		ID: uuid.New(), RoundNumber: 1213, DrawDate: "2026-02-28", CreatedAt: time.Now(),
	}))
	matched := 3
	s.Require().NoError(s.store.UpsertIdentityRound(s.ctx, lotto.IdentityRound{
		ID: uuid.New(), IdentityID: id.ID, Name: id.Name, RoundNumber: 1213,
		Numbers: []int{5, 12, 18, 40, 41, 42}, MatchedCount: &matched, CreatedAt: time.Now(),
	}))

	result, err := s.service.Search(s.ctx, "홍길동", 1, 20)
	s.Require().NoError(err)
	s.Require().Len(result.Items, 1)
	s.Require().NotNil(result.Items[0].LatestRound)
	s.Equal(1213, result.Items[0].LatestRound.RoundNumber)
	s.Equal([]int{5, 12, 18, 40, 41, 42}, result.Items[0].LatestRound.Numbers)
	s.Equal(3, *result.Items[0].LatestRound.MatchedCount)
}

func (s *IdentityServiceSuite) TestList() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"다람쥐", "가물치", "나비잠"} {
		id := identity.NewIdentity(name, base.AddDate(0, 0, i))
		id.Status = identity.StatusActive
		id.FixedNumbers = []int{1, 2, 3, 4, 5, 6}
		s.Require().NoError(s.store.SaveIdentity(s.ctx, id))
	}
	s.addIdentity("보류중", identity.StatusPending, nil)

	firstNames := func(result ListResult) []string {
		names := make([]string, len(result.Items))
		for i, item := range result.Items {
			names[i] = item.Name
		}
		return names
	}

	s.Run("newest is the default", func() {
		result, err := s.service.List(s.ctx, "", 1, 20)
		s.Require().NoError(err)
		s.Equal(3, result.Total)
		s.Equal([]string{"나비잠", "가물치", "다람쥐"}, firstNames(result))
	})

	s.Run("oldest", func() {
		result, err := s.service.List(s.ctx, SortOldest, 1, 20)
		s.Require().NoError(err)
		s.Equal([]string{"다람쥐", "가물치", "나비잠"}, firstNames(result))
	})

	s.Run("name ascending", func() {
		result, err := s.service.List(s.ctx, SortNameAsc, 1, 20)
		s.Require().NoError(err)
		s.Equal([]string{"가물치", "나비잠", "다람쥐"}, firstNames(result))
	})

	s.Run("name descending", func() {
		result, err := s.service.List(s.ctx, SortNameDesc, 1, 20)
		s.Require().NoError(err)
		s.Equal([]string{"다람쥐", "나비잠", "가물치"}, firstNames(result))
	})

	s.Run("pagination", func() {
		result, err := s.service.List(s.ctx, SortNameAsc, 2, 2)
		s.Require().NoError(err)
		s.Equal(3, result.Total)
		s.Equal([]string{"다람쥐"}, firstNames(result))
	})

	s.Run("page past the end is empty", func() {
		result, err := s.service.List(s.ctx, SortNameAsc, 9, 20)
		s.Require().NoError(err)
		s.Empty(result.Items)
		s.Equal(3, result.Total)
	})

	s.Run("per page is clamped", func() {
		result, err := s.service.List(s.ctx, "", 1, 10_000)
		s.Require().NoError(err)
		s.Equal(MaxPerPage, result.PerPage)
	})

	s.Run("unknown sort is rejected", func() {
		_, err := s.service.List(s.ctx, "sideways", 1, 20)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
