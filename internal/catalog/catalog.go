package catalog

import (
	"context"
	"errors"

	"github.com/dministrator/flowdb/pkg/flow"
	"github.com/dministrator/flowdb/pkg/sqldb"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown user or
// a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Catalog holds the registry and the managers of the demo records.
type Catalog struct {
	Registry *sqldb.Registry
	Genres   *sqldb.Manager[Genre]
	Artists  *sqldb.Manager[Artist]
	Albums   *sqldb.Manager[Album]
	Users    *sqldb.Manager[User]
}

// New registers the demo records in dependency order.
func New() *Catalog {
	reg := sqldb.NewRegistry()
	return &Catalog{
		Registry: reg,
		Genres:   sqldb.Register[Genre](reg),
		Artists: sqldb.Register[Artist](reg,
			sqldb.ForeignKey("(genre_id) REFERENCES genres (id) ON DELETE CASCADE")),
		Albums: sqldb.Register[Album](reg,
			sqldb.ForeignKey("(artist_id) REFERENCES artists (id) ON DELETE CASCADE")),
		Users: sqldb.Register[User](reg),
	}
}

// Authenticate looks username up on the named connection and checks
// password against the stored hash.
func (c *Catalog) Authenticate(ctx context.Context, pool *sqldb.Pool, name, username, password string) (*User, error) {
	u, err := c.Users.Get(ctx, pool, name, sqldb.Filters{"username": username})
	if sqldb.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.Password.Equal(password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Routes registers the catalog resources and the login endpoint on r.
func (c *Catalog) Routes(app *flow.App, r *flow.Router) error {
	if err := r.Resources("genres", NewResource(app, c.Genres)); err != nil {
		return err
	}
	if err := r.Resources("artists", NewResource(app, c.Artists)); err != nil {
		return err
	}
	if err := r.Resources("albums", NewResource(app, c.Albums)); err != nil {
		return err
	}
	if err := r.Resources("users", NewResource(app, c.Users)); err != nil {
		return err
	}
	r.Post("/login", c.login)
	return nil
}

type credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *Catalog) login(ctx *flow.Context) {
	var in credentials
	if err := ctx.BindJSON(&in); err != nil {
		_ = ctx.JSON(400, map[string]string{"error": err.Error()})
		return
	}
	if err := validate.Struct(in); err != nil {
		ctx.Fail(err)
		return
	}
	u, err := c.Authenticate(ctx.Ctx(), ctx.Pool(), connection(ctx), in.Username, in.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		_ = ctx.JSON(401, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		ctx.Fail(err)
		return
	}
	_ = ctx.JSON(200, u)
}
