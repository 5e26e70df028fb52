package tests

import (
	"testing"
	"visaflow/intake/schema"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	info, err := user.userInfo()
	if err != nil {
		t.Fatal(err)
	}

	if info.Username != "user1" || info.Email != "user1@mail.com" || info.Admin {
		t.Fatalf("incorrect user info: %+v", info)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)

	if _, err := env.newUser("user1"); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	if _, err := c.signup("user2", "user1@mail.com", "password"); err == nil {
		t.Fatal("signup with duplicate email should fail")
	}
}

func TestLoginInvalidPassword(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	if _, err := c.signup("user1", "user1@mail.com", "password"); err != nil {
		t.Fatal(err)
	}

	err := c.login(loginInfo{Email: "user1@mail.com", Password: "wrong_password"})
	if err == nil {
		t.Fatal("login with invalid password should fail")
	}
}

func TestListUsersRequiresAdmin(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.listUsers(); err == nil {
		t.Fatal("regular user should not be able to list users")
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	users, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestPromoteAndDemoteAdmin(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.promoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}

	info, err := user.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if !info.Admin {
		t.Fatal("user should be admin after promotion")
	}

	if err := admin.demoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}

	info, err = user.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Admin {
		t.Fatal("user should not be admin after demotion")
	}
}

func TestCannotDemoteLastAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.demoteAdmin(admin.userId); err == nil {
		t.Fatal("demoting the last admin should fail")
	}
}

func TestDeleteUserReassignsApplications(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	applicationId, err := user.submitApplication(validApplicant(), nil)
	if err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.deleteUser(user.userId); err != nil {
		t.Fatal(err)
	}

	if n := countRows(t, env.db, &schema.User{}); n != 1 {
		t.Fatalf("expected 1 remaining user, got %d", n)
	}

	// The application now belongs to the admin.
	apps, err := admin.listApplications()
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 1 || apps[0].ApplicationId.String() != applicationId {
		t.Fatalf("application was not reassigned to admin: %+v", apps)
	}
}
