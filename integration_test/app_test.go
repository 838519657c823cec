package integration_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/suite"

	"gitlab.com/timkado/api/waitlist-ops/internal/api"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/triage"
	"gitlab.com/timkado/api/waitlist-ops/internal/usecase"
)

// AppTestSuite drives the full HTTP surface against a file store.
type AppTestSuite struct {
	BaseFileSuite
	Server *httptest.Server
	Client *http.Client
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func (s *AppTestSuite) SetupTest() {
	s.BaseFileSuite.SetupTest()

	router := api.NewRouter(usecase.NewWaitlistService(s.Store), api.Options{
		AllowedOrigins: []string{"*"},
		OpsUser:        "ops",
		OpsPass:        "pass",
	})
	s.Server = httptest.NewServer(router)
	s.Client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func (s *AppTestSuite) TearDownTest() {
	s.Server.Close()
}

func (s *AppTestSuite) submit(form url.Values) string {
	resp, err := s.Client.PostForm(s.Server.URL+"/api/waitlist", form)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusSeeOther, resp.StatusCode)
	return resp.Header.Get("Location")
}

func (s *AppTestSuite) TestDedupeAcrossFunnels() {
	s.Equal("/coming-soon?ok=1", s.submit(url.Values{"email": {"lead@example.com"}, "source": {"coming-soon"}, "intent": {"early-access"}, "module": {"edge-fiber"}}))
	s.Equal("/trust?ok=1", s.submit(url.Values{"email": {"LEAD@example.com"}, "source": {"trust"}, "intent": {"early-access"}, "module": {"edge-fiber"}, "role": {"isp"}, "returnTo": {"/trust"}}))
	// Same email, different intent: a separate lead
	s.submit(url.Values{"email": {"lead@example.com"}, "intent": {"verification-pack"}})

	records, err := s.Store.Load(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	s.Equal(model.IntentVerificationPack, records[0].Intent)

	merged := records[1]
	s.Equal(model.SourceComingSoon, merged.Source)
	s.Equal(model.SourceTrust, merged.LastSource)
	s.Equal("isp", merged.Role)
}

func (s *AppTestSuite) TestConcurrentSubmissions_NoLostUpdates() {
	const total = 40
	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(8, func(data interface{}) {
		defer wg.Done()
		s.submit(url.Values{"email": {data.(string)}})
	})
	s.Require().NoError(err)
	defer pool.Release()

	for i := 0; i < total; i++ {
		wg.Add(1)
		s.Require().NoError(pool.Invoke(fmt.Sprintf("burst-%d@example.com", i)))
	}
	wg.Wait()

	records, err := s.Store.Load(s.Ctx)
	s.Require().NoError(err)
	s.Len(records, total)
}

func (s *AppTestSuite) TestOpsTriageFlow() {
	s.submit(url.Values{"email": {"auditor@example.com"}, "intent": {"verification-pack"}, "role": {"auditor"}, "company": {"Acme Audit"}, "notes": {strings.Repeat("detail ", 30)}})
	s.submit(url.Values{"email": {"casual@example.com"}})

	req, err := http.NewRequest(http.MethodGet, s.Server.URL+"/api/ops/waitlist/summary", nil)
	s.Require().NoError(err)
	req.SetBasicAuth("ops", "pass")
	resp, err := s.Client.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	records, err := s.Store.Load(s.Ctx)
	s.Require().NoError(err)
	sorted := triage.Triage(records, triage.Criteria{})
	s.Require().Len(sorted, 2)
	s.Equal("auditor@example.com", sorted[0].Email)
	s.Equal(triage.MaxScore, sorted[0].Score)
}
