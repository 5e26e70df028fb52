package tests

import (
	"sync"
	"testing"
	"visaflow/intake/schema"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitPayment(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	require.NoError(t, err)

	applicationId, err := user.submitApplication(validApplicant(), nil)
	require.NoError(t, err)

	result, err := user.submitPayment(applicationId, "80.00")
	require.NoError(t, err)

	assert.Equal(t, "accepted", result.Status)
	assert.NotEmpty(t, result.PaymentId)

	info, err := user.getApplication(applicationId)
	require.NoError(t, err)

	require.NotNil(t, info.Payment)
	assert.Equal(t, schema.PaymentPending, info.Payment.Status)
	assert.True(t, info.Payment.Amount.Equal(decimal.NewFromInt(80)))
}

func TestSecondPaymentRejected(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	require.NoError(t, err)

	applicationId, err := user.submitApplication(validApplicant(), nil)
	require.NoError(t, err)

	first, err := user.submitPayment(applicationId, "80.00")
	require.NoError(t, err)
	require.Equal(t, "accepted", first.Status)

	second, err := user.submitPayment(applicationId, "80.00")
	require.NoError(t, err)

	assert.Equal(t, "rejected", second.Status)
	assert.Equal(t, "already_paid", second.Reason)
	assert.Empty(t, second.PaymentId)

	assert.EqualValues(t, 1, countRows(t, env.db, &schema.Payment{}))
}

func TestPaymentValidation(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	require.NoError(t, err)

	applicationId, err := user.submitApplication(validApplicant(), nil)
	require.NoError(t, err)

	for _, amount := range []string{"", "abc", "-5.00", "10.123"} {
		body := map[string]string{"amount": amount}
		fieldErrors, err := user.Post("/payment/" + applicationId).Json(body).DoFieldErrors()
		require.NoError(t, err)
		assert.Contains(t, fieldErrors, "amount", "amount '%v' should be rejected", amount)
	}

	assert.EqualValues(t, 0, countRows(t, env.db, &schema.Payment{}))
}

func TestPaymentForMissingApplication(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	require.NoError(t, err)

	_, err = user.submitPayment(uuid.NewString(), "80.00")
	assert.Error(t, err)

	assert.EqualValues(t, 0, countRows(t, env.db, &schema.Payment{}))
}

func TestConcurrentPayments(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	require.NoError(t, err)

	applicationId, err := user.submitApplication(validApplicant(), nil)
	require.NoError(t, err)

	const attempts = 8

	results := make([]paymentResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = user.submitPayment(applicationId, "80.00")
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		if results[i].Status == "accepted" {
			accepted++
		} else {
			assert.Equal(t, "already_paid", results[i].Reason)
		}
	}

	assert.Equal(t, 1, accepted, "exactly one concurrent payment should win")
	assert.EqualValues(t, 1, countRows(t, env.db, &schema.Payment{}))
}
