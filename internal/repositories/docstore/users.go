package docstore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"messengerBack/internal/models"
)

type userDoc struct {
	UID         string     `firestore:"uid"`
	FirstName   string     `firestore:"firstName"`
	LastName    string     `firestore:"lastName"`
	Email       string     `firestore:"email"`
	Password    string     `firestore:"password,omitempty"`
	DateOfBirth *time.Time `firestore:"dateOfBirth"`
	Avatar      *string    `firestore:"avatar"`
	Role        string     `firestore:"role"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   *time.Time `firestore:"updatedAt"`
}

func userToDoc(u models.User) userDoc {
	return userDoc{
		UID:         u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Password:    u.Password,
		DateOfBirth: u.DateOfBirth,
		Avatar:      u.AvatarURL,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (d userDoc) model() models.User {
	return models.User{
		ID:          d.UID,
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		Email:       d.Email,
		Password:    d.Password,
		DateOfBirth: d.DateOfBirth,
		AvatarURL:   d.Avatar,
		Role:        d.Role,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func decodeUser(snap *firestore.DocumentSnapshot) (models.User, error) {
	var d userDoc
	if err := snap.DataTo(&d); err != nil {
		return models.User{}, err
	}
	if d.UID == "" {
		d.UID = snap.Ref.ID
	}
	return d.model(), nil
}

func decodeUsers(snaps []*firestore.DocumentSnapshot) ([]models.User, error) {
	users := make([]models.User, 0, len(snaps))
	for _, snap := range snaps {
		u, err := decodeUser(snap)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) users() *firestore.CollectionRef {
	return s.client.Collection(usersCollection)
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = &user.CreatedAt

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(s.users().Where("email", "==", user.Email).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return models.ErrDuplicateEmail
		}
		ref := s.users().Doc(user.ID)
		if _, err := tx.Get(ref); err == nil {
			return models.ErrProfileExists
		} else if !isNotFound(err) {
			return err
		}
		return tx.Create(ref, userToDoc(user))
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	snap, err := s.users().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return models.User{}, models.ErrUserNotFound
		}
		return models.User{}, err
	}
	return decodeUser(snap)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	snaps, err := s.users().Where("email", "==", email).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return models.User{}, err
	}
	if len(snaps) == 0 {
		return models.User{}, models.ErrUserNotFound
	}
	return decodeUser(snaps[0])
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	for _, part := range chunk(ids, inQueryLimit) {
		snaps, err := s.users().Where("uid", "in", part).Documents(ctx).GetAll()
		if err != nil {
			return nil, err
		}
		decoded, err := decodeUsers(snaps)
		if err != nil {
			return nil, err
		}
		users = append(users, decoded...)
	}
	return users, nil
}

func (s *Store) SearchUsers(ctx context.Context, excludeID, email string) ([]models.User, error) {
	q := s.users().Where("uid", "!=", excludeID)
	if email != "" {
		q = q.Where("email", "==", email)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	users, err := decodeUsers(snaps)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].FirstName != users[j].FirstName {
			return users[i].FirstName < users[j].FirstName
		}
		if users[i].LastName != users[j].LastName {
			return users[i].LastName < users[j].LastName
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (s *Store) UpdateProfile(ctx context.Context, user models.User) (models.User, error) {
	now := time.Now().UTC()
	_, err := s.users().Doc(user.ID).Update(ctx, []firestore.Update{
		{Path: "firstName", Value: user.FirstName},
		{Path: "lastName", Value: user.LastName},
		{Path: "dateOfBirth", Value: user.DateOfBirth},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		if isNotFound(err) {
			return models.User{}, models.ErrUserNotFound
		}
		return models.User{}, err
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(ctx, id, firestore.Update{Path: "password", Value: passwordHash})
}

func (s *Store) UpdateAvatar(ctx context.Context, id string, avatarURL *string) error {
	return s.updateUser(ctx, id, firestore.Update{Path: "avatar", Value: avatarURL})
}

func (s *Store) updateUser(ctx context.Context, id string, updates ...firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now().UTC()})
	_, err := s.users().Doc(id).Update(ctx, updates)
	if err != nil && isNotFound(err) {
		return models.ErrUserNotFound
	}
	return err
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	ref := s.users().Doc(id)
	if _, err := ref.Get(ctx); err != nil {
		if isNotFound(err) {
			return models.ErrUserNotFound
		}
		return err
	}
	_, err := ref.Delete(ctx)
	return err
}
