package tests

import (
	"testing"
	"visaflow/intake/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaffEndpointsRequireAdmin(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	require.NoError(t, err)

	_, err = user.listAllApplications()
	assert.Error(t, err)

	_, err = user.createOperator("Olga", "Meyer", "olga@consulate.gov", "standard")
	assert.Error(t, err)
}

func TestListAllApplications(t *testing.T) {
	env := setupTestEnv(t)

	user1, err := env.newUser("user1")
	require.NoError(t, err)
	user2, err := env.newUser("user2")
	require.NoError(t, err)

	_, err = user1.submitApplication(validApplicant(), nil)
	require.NoError(t, err)
	_, err = user2.submitApplication(map[string]interface{}{
		"first_name": "Grace",
		"last_name":  "Hopper",
		"email":      "grace@mail.com",
		"phone":      "+12025550117",
	}, nil)
	require.NoError(t, err)

	admin, err := env.adminClient()
	require.NoError(t, err)

	apps, err := admin.listAllApplications()
	require.NoError(t, err)

	assert.Len(t, apps, 2)
}

func TestUpdateApplicationStatus(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	require.NoError(t, err)

	applicationId, err := user.submitApplication(validApplicant(), nil)
	require.NoError(t, err)

	admin, err := env.adminClient()
	require.NoError(t, err)

	require.NoError(t, admin.updateStatus(applicationId, schema.Approved))

	info, err := user.getApplication(applicationId)
	require.NoError(t, err)
	assert.Equal(t, schema.Approved, info.Status)

	// Only the known statuses are accepted.
	body := map[string]string{"status": "Closed"}
	fieldErrors, err := admin.Post("/staff/applications/" + applicationId + "/status").Json(body).DoFieldErrors()
	require.NoError(t, err)
	assert.Contains(t, fieldErrors, "status")
}

func TestAssignOperator(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	require.NoError(t, err)

	applicationId, err := user.submitApplication(validApplicant(), nil)
	require.NoError(t, err)

	admin, err := env.adminClient()
	require.NoError(t, err)

	operatorId, err := admin.createOperator("Olga", "Meyer", "olga@consulate.gov", "standard")
	require.NoError(t, err)

	require.NoError(t, admin.assignOperator(applicationId, operatorId))

	operators, err := admin.listOperators()
	require.NoError(t, err)
	require.Len(t, operators, 1)
	assert.Equal(t, "Meyer", operators[0].LastName)

	var application schema.Application
	require.NoError(t, env.db.First(&application, "id = ?", applicationId).Error)
	require.NotNil(t, application.OperatorId)
	assert.Equal(t, operatorId, application.OperatorId.String())
}

func TestDeleteApplication(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	require.NoError(t, err)

	applicationId, err := user.submitApplication(validApplicant(), []documentEntry{
		{DocType: schema.DocPassport, FileRef: "documents/passport-scan"},
	})
	require.NoError(t, err)

	_, err = user.submitPayment(applicationId, "80.00")
	require.NoError(t, err)

	admin, err := env.adminClient()
	require.NoError(t, err)

	require.NoError(t, admin.deleteApplication(applicationId))

	assert.EqualValues(t, 0, countRows(t, env.db, &schema.Application{}))
	assert.EqualValues(t, 0, countRows(t, env.db, &schema.Applicant{}))
	assert.EqualValues(t, 0, countRows(t, env.db, &schema.Payment{}))
	assert.EqualValues(t, 0, countRows(t, env.db, &schema.DocumentApplication{}))

	// Document rows are kept, they are owned by the applicant not the
	// application.
	assert.EqualValues(t, 1, countRows(t, env.db, &schema.Document{}))
}
